package stager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/domain/manifest"
)

var (
	// ErrPackageRootMissing is returned when a declared package has not been fetched.
	ErrPackageRootMissing = errors.New("package root not found")
	// errNoPackageSource is returned when neither a roots file nor a packages directory is configured.
	errNoPackageSource = errors.New("either a roots file or a packages directory must be provided")
)

// locateRoots maps every declaration to the absolute directory the package manager fetched it into.
// It only reads from disk.
func locateRoots(cfg *config.Config, decls []manifest.Declaration) (map[string]string, error) {
	var (
		listed map[string]string
		err    error
	)

	switch {
	case cfg.RootsFile != "":
		if listed, err = readRootsFile(cfg.RootsFile); err != nil {
			return nil, err
		}
	case cfg.PackagesDir != "":
	default:
		return nil, errNoPackageSource
	}

	roots := make(map[string]string, len(decls))

	for _, d := range decls {
		var root string

		if listed != nil {
			var ok bool
			if root, ok = listed[d.Name]; !ok {
				return nil, fmt.Errorf("%w: %s is not listed in %s", ErrPackageRootMissing, d.Name, cfg.RootsFile)
			}
		} else {
			root = filepath.Join(cfg.PackagesDir, d.Name)
		}

		if root, err = filepath.Abs(root); err != nil {
			return nil, fmt.Errorf("resolve root of %s: %w", d.Name, err)
		}

		info, statErr := os.Stat(root)
		if statErr != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s at %s", ErrPackageRootMissing, d.Reference(), root)
		}

		roots[d.Name] = root
	}

	return roots, nil
}

// readRootsFile reads a YAML map of package name to root. Relative roots are
// resolved against the directory holding the file.
func readRootsFile(path string) (map[string]string, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read roots file: %w", err)
	}

	var roots map[string]string
	if err = yaml.Unmarshal(contents, &roots); err != nil {
		return nil, fmt.Errorf("decode roots file %s: %w", path, err)
	}

	base := filepath.Dir(path)

	for name, root := range roots {
		if !filepath.IsAbs(root) {
			roots[name] = filepath.Join(base, root)
		}
	}

	if roots == nil {
		roots = make(map[string]string)
	}

	return roots, nil
}
