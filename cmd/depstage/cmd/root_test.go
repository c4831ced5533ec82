package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/depstage/internal/domain/manifest"
	"github.com/oshokin/depstage/internal/repository/receipt"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer

	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return stdout.String(), err
}

// TestResolveCommand prints base references followed by the Linux extension.
func TestResolveCommand(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("staging_root: .\n"), 0o600))

	out, err := execute(t, "resolve", "--config", cfgPath, "--os", "Linux", "--log-level", "error")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	m := manifest.Default()
	require.Len(t, lines, len(m.Base)+1)
	require.Equal(t, "libdispatch/4.0.3-1@vuo+conan+libdispatch/stable", lines[len(lines)-1])
}

// TestResolveCommand_UnknownPlatform fails with a non-nil error.
func TestResolveCommand_UnknownPlatform(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("staging_root: .\n"), 0o600))

	out, err := execute(t, "resolve", "-c", cfgPath, "--os", "Windows", "--log-level", "error")
	require.ErrorIs(t, err, manifest.ErrUnsupportedPlatform)
	require.Empty(t, out)
}

// TestBadLogLevel rejects unknown level names before running the subcommand.
func TestBadLogLevel(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "version", "--log-level", "loud")
	require.ErrorIs(t, err, errBadLogLevel)
}

// TestStatusCommand_NeverStaged reports a missing receipt.
func TestStatusCommand_NeverStaged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("staging_root: "+dir+"\n"), 0o600))

	_, err := execute(t, "status", "-c", cfgPath, "--log-level", "error")
	require.ErrorIs(t, err, receipt.ErrNotFound)
}
