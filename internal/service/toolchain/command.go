package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/domain/manifest"
	"github.com/oshokin/depstage/internal/logger"
)

// DefaultOutputFilename is the fragment name used when Options.Output is empty.
const DefaultOutputFilename = "depstage_toolchain.cmake"

// fragmentFileMode is the mode of the written fragment.
const fragmentFileMode os.FileMode = 0o644

// Options contains inputs for the toolchain generator.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Platform overrides host detection.
	Platform string
	// Output is the fragment path.
	Output string
}

// Run resolves the declarations for the platform and writes the CMake fragment.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "depstage-toolchain")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	platform := manifest.DetectPlatform()
	if opts.Platform != "" {
		platform = manifest.ParsePlatform(opts.Platform)
	}

	m, err := manifest.LoadOrDefault(cfg.ManifestFile)
	if err != nil {
		return err
	}

	decls, err := m.Resolve(platform)
	if err != nil {
		return err
	}

	output := opts.Output
	if output == "" {
		output = DefaultOutputFilename
	}

	if err = os.WriteFile(filepath.Clean(output), []byte(Render(decls)), fragmentFileMode); err != nil {
		return fmt.Errorf("write toolchain fragment: %w", err)
	}

	logger.InfoKV(ctx, "Toolchain fragment written", "path", output, "platform", platform, "variables", len(decls))

	return nil
}

// Render returns one cache variable per declaration, in the given order.
// Package names are used verbatim; CMake accepts '-', '+', '.' and '/' in variable names.
func Render(decls []manifest.Declaration) string {
	var builder strings.Builder

	for _, d := range decls {
		fmt.Fprintf(&builder, "set(CONAN_%s_VERSION %q CACHE STRING \"Upstream version of %s\")\n",
			d.Name, d.Upstream(), d.Name)
	}

	return builder.String()
}
