package stager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/depstage/internal/logger"
)

const (
	// MarkerFilename marks a staging root that a depstage process is populating.
	MarkerFilename = ".depstage-marker"

	markerPermissions = 0o600
)

// ErrStagingInProgress is returned when another live process holds the staging marker.
var ErrStagingInProgress = errors.New("another staging run is in progress")

// IsStagingRunningNow reports whether the staging root carries a marker owned by a live process.
// Markers left by dead processes are removed.
func IsStagingRunningNow(ctx context.Context, stagingRoot string) bool {
	path := filepath.Join(stagingRoot, MarkerFilename)

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug(ctx, "Staging marker not found, continuing")
		return false
	}

	if err != nil {
		logger.WarnKV(ctx, "Unable to read staging marker", "path", path, "error", err)
		return true
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err == nil && pid != os.Getpid() {
		var process ps.Process

		process, err = ps.FindProcess(pid)
		if err == nil && process != nil {
			logger.InfoKV(ctx, "Staging marker is held by a running process",
				"pid", pid, "executable", process.Executable())

			return true
		}
	}

	logger.InfoKV(ctx, "Removing stale staging marker", "path", path)

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true
	}

	return false
}

// acquireMarker creates the staging marker holding the current process id.
func acquireMarker(ctx context.Context, stagingRoot string) (release func(), err error) {
	if IsStagingRunningNow(ctx, stagingRoot) {
		return nil, ErrStagingInProgress
	}

	path := filepath.Join(stagingRoot, MarkerFilename)

	//nolint:gosec // Path is built from the configured staging root.
	marker, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, markerPermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrStagingInProgress
		}

		return nil, fmt.Errorf("create staging marker: %w", err)
	}

	_, err = marker.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := marker.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write staging marker: %w", err)
	}

	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove staging marker", "path", path, "error", err)
		}
	}, nil
}

// warnRunningBinaries logs staged executables that are running right now.
// Replacement is rename based, so running copies keep their old image until restarted.
func warnRunningBinaries(ctx context.Context, names map[string]struct{}) error {
	if len(names) == 0 {
		return nil
	}

	processes, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	self := os.Getpid()

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		if _, found := names[process.Executable()]; !found {
			continue
		}

		logger.WarnKV(ctx, "Staged binary is running and keeps the previous version until restarted",
			"executable", process.Executable(), "pid", process.Pid())
	}

	return nil
}
