package stager

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/depstage/internal/domain/staging"
	"github.com/oshokin/depstage/internal/logger"

	// Ensure SHA512 is available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// DefaultChecksumFunction verifies every applied file.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512

	dirPermissions = 0o755
)

var errHashUnavailable = errors.New("hash function unavailable")

// source is one package root to copy from.
type source struct {
	name string
	root string
}

// collect lists the files entry selects inside every source, in source order.
// When two packages ship the same path the later one is copied last and wins.
func collect(entry staging.Entry, sources []source) ([]plannedCopy, error) {
	var planned []plannedCopy

	for _, src := range sources {
		dir := filepath.Join(src.root, entry.Source)

		info, err := os.Stat(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}

		if !info.IsDir() {
			continue
		}

		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}

			if d.IsDir() {
				return nil
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}

			if !entry.Matches(rel) {
				return nil
			}

			planned = append(planned, plannedCopy{pkg: src.name, from: path, rel: rel})

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}

	return planned, nil
}

// plannedCopy is one file selected by a staging entry.
type plannedCopy struct {
	pkg  string
	from string
	rel  string
}

// copyEntry copies the planned files under the entry destination and returns the file count.
func copyEntry(ctx context.Context, stagingRoot string, entry staging.Entry, planned []plannedCopy) (int, error) {
	destination := filepath.Join(stagingRoot, entry.Destination)

	for _, p := range planned {
		to := filepath.Join(destination, p.rel)

		if err := os.MkdirAll(filepath.Dir(to), dirPermissions); err != nil {
			return 0, fmt.Errorf("create %s: %w", filepath.Dir(to), err)
		}

		if err := stageFile(p.from, to); err != nil {
			return 0, fmt.Errorf("stage %s from %s: %w", p.rel, p.pkg, err)
		}

		logger.DebugKV(ctx, "Staged file", "package", p.pkg, "path", to)
	}

	return len(planned), nil
}

// stageFile copies a regular file atomically, or recreates a symbolic link.
func stageFile(from, to string) error {
	info, err := os.Lstat(from)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return stageSymlink(from, to)
	}

	return applyFile(from, to, info.Mode().Perm())
}

func stageSymlink(from, to string) error {
	target, err := os.Readlink(from)
	if err != nil {
		return err
	}

	if err = os.Remove(to); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return os.Symlink(target, to)
}

// applyFile replaces to with the contents of from through go-update, which writes
// a sibling file, verifies its checksum and renames it into place.
func applyFile(from, to string, mode os.FileMode) error {
	data, err := os.ReadFile(filepath.Clean(from))
	if err != nil {
		return err
	}

	checksum, err := Checksum(data)
	if err != nil {
		return err
	}

	// Apply renames the existing target aside first, so one has to exist.
	if _, err = os.Lstat(to); errors.Is(err, os.ErrNotExist) {
		var placeholder *os.File

		if placeholder, err = os.Create(filepath.Clean(to)); err != nil {
			return err
		}

		if err = placeholder.Close(); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	options := goupdate.Options{
		TargetPath: to,
		TargetMode: mode,
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return err
	}

	removeLeftovers(to)

	// The new file is created under the process umask.
	return os.Chmod(to, mode)
}

// removeLeftovers deletes the previous version kept aside by Apply, if any.
func removeLeftovers(to string) {
	dir, base := filepath.Split(to)

	for _, old := range []string{to + ".old", filepath.Join(dir, "."+base+".old")} {
		if _, err := os.Lstat(old); err == nil {
			_ = os.Remove(old)
		}
	}
}

// Checksum returns the DefaultChecksumFunction digest of data.
func Checksum(data []byte) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}
