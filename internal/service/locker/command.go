package locker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/domain/manifest"
	"github.com/oshokin/depstage/internal/logger"
	"github.com/oshokin/depstage/internal/service/stager"
	"github.com/oshokin/depstage/internal/version"
)

// DefaultLockFilename is where the requirements lock is written by default.
const DefaultLockFilename = "depstage-requirements.yaml"

// lockFileMode keeps the lock readable by the package manager and CI users.
const lockFileMode os.FileMode = 0o644

// Options contains inputs for the locker entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Platform overrides host detection.
	Platform string
	// Output is the lock path; DefaultLockFilename when empty.
	Output string
}

// Lock is the document written for the package manager.
type Lock struct {
	// ToolVersion is the depstage version that resolved the set.
	ToolVersion string `yaml:"tool_version"`
	// Platform the set was resolved for.
	Platform string `yaml:"platform"`
	// Requires are the references in manifest order.
	Requires []string `yaml:"requires"`
}

// errStagingRunning indicates that a staging run holds the configured staging root.
var errStagingRunning = errors.New("a staging run is in progress")

// Run resolves the declarations and writes the lock.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "depstage-locker")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	lock, err := Resolve(cfg.ManifestFile, opts.Platform)
	if err != nil {
		return err
	}

	// Checked after resolution, since a stale marker gets removed here.
	if stager.IsStagingRunningNow(ctx, cfg.StagingRoot) {
		return errStagingRunning
	}

	output := opts.Output
	if output == "" {
		output = DefaultLockFilename
	}

	logger.InfoKV(ctx, "Saving requirements lock", "path", output, "platform", lock.Platform, "count", len(lock.Requires))

	if err = Save(output, lock); err != nil {
		return err
	}

	printNextSteps(ctx, output, lock)

	return nil
}

// Resolve builds the lock for platform from the manifest at manifestPath (or the built-in one).
// An empty platform means the running host.
func Resolve(manifestPath, platform string) (*Lock, error) {
	p := manifest.DetectPlatform()
	if platform != "" {
		p = manifest.ParsePlatform(platform)
	}

	m, err := manifest.LoadOrDefault(manifestPath)
	if err != nil {
		return nil, err
	}

	decls, err := m.Resolve(p)
	if err != nil {
		return nil, err
	}

	return &Lock{
		ToolVersion: version.Short(),
		Platform:    p.String(),
		Requires:    manifest.References(decls),
	}, nil
}

// Save writes lock as YAML.
func Save(path string, lock *Lock) error {
	contents, err := yaml.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err = os.WriteFile(filepath.Clean(path), contents, lockFileMode); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}

	return nil
}

// Load reads a lock written by Save.
func Load(path string) (*Lock, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}

	var lock Lock
	if err = yaml.Unmarshal(contents, &lock); err != nil {
		return nil, fmt.Errorf("unmarshal lock: %w", err)
	}

	return &lock, nil
}

// printNextSteps logs what to do with the lock.
func printNextSteps(ctx context.Context, output string, lock *Lock) {
	var builder strings.Builder

	builder.WriteString("Fetch the following ")
	builder.WriteString(lock.Platform)
	builder.WriteString(" packages listed in ")
	builder.WriteString(output)
	builder.WriteString(" with the package manager:\n")
	builder.WriteString(strings.Join(lock.Requires, ",\n"))
	builder.WriteString("\n\nThen run: depstage stage --packages <fetched packages directory>")

	logger.Info(ctx, builder.String())
}
