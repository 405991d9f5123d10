package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
)

const (
	envPrefix         = "RAGD_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// nestedSections lists second-level sections so RAGD_ env names can be
// mapped onto them; everything else splits on the first underscore only.
var nestedSections = map[string][]string{
	"server":        {"rate_limit"},
	"observability": {"logging", "telemetry"},
	"vectorstore":   {"qdrant"},
}

// Load loads configuration from defaults and RAGD_ environment variables.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads defaults, then the YAML file at path (skipped when path
// is empty), then RAGD_ environment variables.
//
// Environment variables map onto config keys by lowercasing and splitting
// on underscores:
//
//	RAGD_SERVER_PORT                  -> server.port
//	RAGD_VECTORSTORE_QDRANT_HOST      -> vectorstore.qdrant.host
//	RAGD_GENERATION_MAX_TOKENS        -> generation.max_tokens
//	RAGD_OBSERVABILITY_LOGGING_LEVEL  -> observability.logging.level
//
// The file must not be readable by group or others (it can hold API keys)
// and must be at most 1MB. The generation section is left to Validate so
// ingestion-only tools load without model credentials.
func LoadWithFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, apperr.Configuration("config.load", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, apperr.Configuration("config.load", fmt.Errorf("parsing %s: %w", path, err))
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, apperr.Configuration("config.load", fmt.Errorf("loading environment: %w", err))
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, apperr.Configuration("config.load", fmt.Errorf("unmarshaling config: %w", err))
	}

	applyCredentialFallbacks(cfg)

	if err := cfg.ValidateIngestion(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps RAGD_SECTION_FIELD to section.field, honouring nestedSections.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, rest, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	for _, sub := range nestedSections[section] {
		if field, ok := strings.CutPrefix(rest, sub+"_"); ok {
			return section + "." + sub + "." + field
		}
	}
	return section + "." + rest
}

// readConfigFile opens the file once and validates it through the same
// descriptor it reads from.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening config file: %v", ErrInvalidConfig, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat config file: %v", ErrInvalidConfig, err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %v", ErrInvalidConfig, err)
	}
	return content, nil
}

func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%w: config path is a directory", ErrInvalidConfig)
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return fmt.Errorf("%w: insecure config file permissions %v (expected 0600 or 0400)", ErrInvalidConfig, perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrInvalidConfig, info.Size(), maxConfigFileSize)
	}
	return nil
}
