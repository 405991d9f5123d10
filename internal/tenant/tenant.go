// Package tenant validates tenant identifiers and resolves them from API
// keys and ingestion paths.
//
// Tenant IDs are opaque, case-sensitive strings. They are never normalized:
// the tag written at ingestion and the tag resolved from an API key must be
// byte-identical for a tenant to see its documents.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxIDLength is the longest accepted tenant ID in bytes.
const MaxIDLength = 64

var (
	// ErrInvalidTenant indicates a tenant ID that fails validation.
	ErrInvalidTenant = errors.New("invalid tenant")

	// ErrMissingTenant indicates no tenant was supplied.
	ErrMissingTenant = errors.New("missing tenant")

	idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Validate checks that id is a usable tenant ID.
func Validate(id string) error {
	if id == "" {
		return ErrMissingTenant
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidTenant)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidTenant, id, MaxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must contain only letters, digits, '-' or '_'", ErrInvalidTenant, id)
	}
	return nil
}

// FromPath returns the tenant owning file, which must live under
// root/<tenant>/. Files directly in root have no tenant.
func FromPath(root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not under %s", ErrInvalidTenant, file, root)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", fmt.Errorf("%w: %s is not under %s", ErrInvalidTenant, file, root)
	}
	id, rest, found := strings.Cut(rel, "/")
	if !found || rest == "" {
		return "", fmt.Errorf("%w: %s is not inside a tenant directory", ErrMissingTenant, file)
	}
	if err := Validate(id); err != nil {
		return "", err
	}
	return id, nil
}

type ctxKey struct{}

// WithTenant stores a validated tenant ID in ctx.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the tenant stored by WithTenant. Fails closed with
// ErrMissingTenant when none is present.
func FromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", ErrMissingTenant
	}
	return id, nil
}
