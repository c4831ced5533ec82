package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/depstage/internal/logger"
)

// Config holds the settings shared by the depstage commands.
type Config struct {
	// StagingRoot is the directory that receives bin/, lib/QtPlugins/ and license/.
	StagingRoot string `yaml:"staging_root"`
	// PackagesDir holds one fetched package per subdirectory named after the package.
	PackagesDir string `yaml:"packages_dir,omitempty"`
	// RootsFile maps package names to their fetched locations and takes precedence over PackagesDir.
	RootsFile string `yaml:"roots_file,omitempty"`
	// ManifestFile optionally replaces the built-in dependency manifest.
	ManifestFile string `yaml:"manifest_file,omitempty"`
	// ReceiptFile is where the last staging run is recorded, relative to StagingRoot unless absolute.
	ReceiptFile string `yaml:"receipt_file"`
	// ToolTimeout bounds every external tool invocation.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
	// InstallNameTool is the binary used to rewrite Mach-O load commands.
	InstallNameTool string `yaml:"install_name_tool"`
	// Codesign is the binary used to re-sign patched tools.
	Codesign string `yaml:"codesign"`
	// LogLevel is the minimum level of log messages.
	LogLevel string `yaml:"log_level"`
	// Platform is set at runtime from --os or host detection. It is not persisted to YAML.
	Platform string `yaml:"-"`
}

const (
	// DefaultConfigFilename is the default filename for depstage settings.
	DefaultConfigFilename = "depstage.yaml"

	// DefaultEnvFilename is loaded from the configuration directory when present.
	DefaultEnvFilename = ".env"

	// DefaultReceiptFilename records the last staging run.
	DefaultReceiptFilename = "depstage-receipt.json"

	// DefaultToolTimeout bounds install_name_tool and codesign runs.
	DefaultToolTimeout = time.Minute

	// DefaultFilePermissions is the permission for files written by depstage.
	DefaultFilePermissions = 0o600

	// envPrefix prefixes every environment override.
	envPrefix = "DEPSTAGE_"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errStagingRootRequired is returned when no staging root is configured.
	errStagingRootRequired = errors.New("staging root must be provided")
	// errBadToolTimeout is returned for a non-positive tool timeout.
	errBadToolTimeout = errors.New("tool timeout must be positive")
	// errBadLogLevel is returned when the log level cannot be parsed.
	errBadLogLevel = errors.New("unknown log level")
)

// Defaults returns the settings used for every field left empty.
func Defaults() *Config {
	return &Config{
		StagingRoot:     ".",
		ReceiptFile:     DefaultReceiptFilename,
		ToolTimeout:     DefaultToolTimeout,
		InstallNameTool: "install_name_tool",
		Codesign:        "codesign",
		LogLevel:        "info",
	}
}

// Load reads the configuration at path, applies DEPSTAGE_* overrides and defaults, and validates it.
// A missing file at the default location is not an error: depstage runs on defaults alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	path = filepath.Clean(path)

	if err := loadEnvFile(filepath.Join(filepath.Dir(path), DefaultEnvFilename)); err != nil {
		return nil, err
	}

	var cfg Config

	contents, err := os.ReadFile(path)

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && filepath.Base(path) == DefaultConfigFilename:
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults into empty fields and checks the result.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if err := mergo.Merge(settings, Defaults()); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}

	if strings.TrimSpace(settings.StagingRoot) == "" {
		return errStagingRootRequired
	}

	if settings.ToolTimeout <= 0 {
		return fmt.Errorf("%w: %s", errBadToolTimeout, settings.ToolTimeout)
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errBadLogLevel, settings.LogLevel)
	}

	return nil
}

// ReceiptPath returns the receipt location resolved against the staging root.
func (c *Config) ReceiptPath() string {
	if filepath.IsAbs(c.ReceiptFile) {
		return c.ReceiptFile
	}

	return filepath.Join(c.StagingRoot, c.ReceiptFile)
}

// loadEnvFile exports variables from an optional .env file without overriding the process environment.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}

// applyEnv overrides fields from DEPSTAGE_* variables.
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"STAGING_ROOT":      &cfg.StagingRoot,
		"PACKAGES_DIR":      &cfg.PackagesDir,
		"ROOTS_FILE":        &cfg.RootsFile,
		"MANIFEST_FILE":     &cfg.ManifestFile,
		"RECEIPT_FILE":      &cfg.ReceiptFile,
		"INSTALL_NAME_TOOL": &cfg.InstallNameTool,
		"CODESIGN":          &cfg.Codesign,
		"LOG_LEVEL":         &cfg.LogLevel,
	}

	for name, field := range strs {
		if value, ok := os.LookupEnv(envPrefix + name); ok && value != "" {
			*field = value
		}
	}

	if value, ok := os.LookupEnv(envPrefix + "TOOL_TIMEOUT"); ok && value != "" {
		timeout, err := cast.ToDurationE(value)
		if err != nil {
			return fmt.Errorf("parse %sTOOL_TIMEOUT: %w", envPrefix, err)
		}

		cfg.ToolTimeout = timeout
	}

	return nil
}
