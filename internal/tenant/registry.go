package tenant

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ErrInvalidKeys indicates a malformed or conflicting API key set.
var ErrInvalidKeys = errors.New("invalid API key configuration")

// KeyEntry binds one API key to one tenant.
type KeyEntry struct {
	Key    string `toml:"key"`
	Tenant string `toml:"tenant"`
}

// Registry resolves API keys to tenants.
type Registry struct {
	entries []KeyEntry
}

// NewRegistry validates entries and builds a Registry. Empty keys are
// skipped so unset environment variables never authenticate anything.
func NewRegistry(entries ...KeyEntry) (*Registry, error) {
	seen := make(map[string]string, len(entries))
	r := &Registry{}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if err := Validate(e.Tenant); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeys, err)
		}
		if prev, ok := seen[e.Key]; ok {
			if prev != e.Tenant {
				return nil, fmt.Errorf("%w: one key maps to tenants %q and %q", ErrInvalidKeys, prev, e.Tenant)
			}
			continue
		}
		seen[e.Key] = e.Tenant
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// LoadKeysFile reads [[keys]] entries from a TOML file:
//
//	[[keys]]
//	key = "k-123"
//	tenant = "acme"
func LoadKeysFile(path string) ([]KeyEntry, error) {
	var file struct {
		Keys []KeyEntry `toml:"keys"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: keys file %s not found", ErrInvalidKeys, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKeys, path, err)
	}
	return file.Keys, nil
}

// KeysFromEnv reads one key per tenant from the named environment variables
// (tenant -> variable name).
func KeysFromEnv(vars map[string]string) []KeyEntry {
	entries := make([]KeyEntry, 0, len(vars))
	for tenantID, name := range vars {
		entries = append(entries, KeyEntry{Key: os.Getenv(name), Tenant: tenantID})
	}
	return entries
}

// Resolve returns the tenant for apiKey. Every entry is compared in
// constant time so response timing does not reveal key prefixes.
func (r *Registry) Resolve(apiKey string) (string, bool) {
	if r == nil || apiKey == "" {
		return "", false
	}
	var match string
	for _, e := range r.entries {
		if subtle.ConstantTimeCompare([]byte(e.Key), []byte(apiKey)) == 1 {
			match = e.Tenant
		}
	}
	return match, match != ""
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
