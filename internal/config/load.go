package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
)

// DefaultPath is the configuration file used when --config is not given.
const DefaultPath = "meshpack.yaml"

// Load reads, expands, defaults, resolves and validates a configuration file.
// A .env file next to the configuration is loaded first; existing environment wins.
func Load(configPath string) (*Config, error) {
	if envFile, err := loadEnvFile(filepath.Dir(configPath)); err != nil {
		slog.Warn("Could not load .env file", "file", envFile, "error", err)
	} else if envFile != "" {
		slog.Debug("Loaded environment variables", "file", envFile)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewError(errors.CategoryNotFound, "configuration file not found").
				WithContext("path", configPath).
				WithCause(err).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// LoadOrDefault loads configPath, falling back to the built-in defaults when the file
// does not exist.
func LoadOrDefault(configPath string) (*Config, bool, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, true, nil
	}
	if errors.HasCategory(err, errors.CategoryNotFound) {
		cfg, derr := Default()
		return cfg, false, derr
	}
	return nil, false, err
}

// Parse builds a configuration from raw YAML.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnv(string(data), os.Getenv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse config").Build()
	}
	return finish(&cfg)
}

// Default returns the built-in configuration with every default applied and resolved.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := applyDefaults(cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to apply defaults").Build()
	}
	cfg.resolvePaths()
	if err := ValidateConfig(cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "configuration validation failed").Build()
	}
	return cfg, nil
}

const initHeader = `# meshpack configuration
#
# ${VAR} references to process environment variables are expanded at load time.
# Run variables (${ROOT}, ${LIB_DIR}, ${TUNNEL_OUT}, ${TUNNEL_SRC}, ${CONTROL_PLANE_SRC},
# ${PACKAGE_ROOT}, ${PUBLISH_DIR}, ${STATE_DIR}, ${CARGO_HOME}, ${OPENSSL_DIR}, ${ARCHIVE}
# and ${DEP_<NAME>_SRC}) are expanded per run from the values below.
`

// Init writes the default configuration, unresolved so that paths stay relative to ${ROOT}.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	var cfg Config
	if err := applyDefaults(&cfg); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out := append([]byte(initHeader), data...)
	if err := os.WriteFile(configPath, out, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
