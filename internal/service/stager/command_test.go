package stager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/domain/manifest"
	"github.com/oshokin/depstage/internal/domain/staging"
	"github.com/oshokin/depstage/internal/repository/receipt"
	"github.com/oshokin/depstage/internal/service/common"
)

// call is one recorded tool invocation.
type call struct {
	dir  string
	name string
	args []string
}

// recordingRunner records invocations and answers from a callback.
type recordingRunner struct {
	mu      sync.Mutex
	calls   []call
	respond func(c call) ([]byte, error)
}

func (r *recordingRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	c := call{dir: dir, name: name, args: append([]string(nil), args...)}

	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()

	if r.respond == nil {
		return nil, nil
	}

	return r.respond(c)
}

const testManifest = `base:
  - graphviz/2.44.1-1@vuo+conan+graphviz/stable
  - llvm/5.0.2-5@vuo+conan+llvm/stable
  - qt/5.12.11-3@vuo+conan+qt/stable
darwin:
  - syphon/5-1@vuo+conan+syphon/stable
linux:
  - libdispatch/4.0.3-1@vuo+conan+libdispatch/stable
`

// fixture is a temporary workspace with fetched packages and a config file.
type fixture struct {
	dir         string
	packagesDir string
	stagingRoot string
	configPath  string
}

func writeFile(t *testing.T, path, contents string, mode os.FileMode) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		dir:         dir,
		packagesDir: filepath.Join(dir, "packages"),
		stagingRoot: filepath.Join(dir, "stage"),
		configPath:  filepath.Join(dir, "settings.yaml"),
	}

	pkg := func(name string) string { return filepath.Join(f.packagesDir, name) }

	// Qt ships its tools, one tool the runtime does not need, plugins and a license.
	for _, tool := range []string{"uic", "lrelease", "lupdate", "lconvert", "moc"} {
		writeFile(t, filepath.Join(pkg("qt"), "bin", tool), "#!/bin/sh\necho "+tool+"\n", 0o755)
	}

	writeFile(t, filepath.Join(pkg("qt"), "plugins", "platforms", "libqcocoa.dylib"), "cocoa", 0o644)
	writeFile(t, filepath.Join(pkg("qt"), "plugins", "imageformats", "libqjpeg.dylib"), "jpeg", 0o644)
	writeFile(t, filepath.Join(pkg("qt"), "license", "qt.txt"), "LGPL", 0o600)

	writeFile(t, filepath.Join(pkg("graphviz"), "bin", "dot"), "dot", 0o755)
	writeFile(t, filepath.Join(pkg("graphviz"), "license", "graphviz.txt"), "EPL", 0o777)

	writeFile(t, filepath.Join(pkg("llvm"), "bin", "clang"), "clang", 0o755)
	writeFile(t, filepath.Join(pkg("llvm"), "license", "llvm.txt"), "NCSA", 0o666)
	writeFile(t, staging.CompilerRuntimeArchive(pkg("llvm"), "5.0.2"), "ar", 0o644)

	require.NoError(t, os.MkdirAll(pkg("syphon"), 0o755))
	require.NoError(t, os.MkdirAll(pkg("libdispatch"), 0o755))

	manifestPath := filepath.Join(dir, "manifest.yaml")
	writeFile(t, manifestPath, testManifest, 0o644)

	cfg := &config.Config{
		StagingRoot:  f.stagingRoot,
		PackagesDir:  f.packagesDir,
		ManifestFile: manifestPath,
	}
	require.NoError(t, config.Save(f.configPath, cfg))

	return f
}

func (f *fixture) options(platform string, runner common.Runner) *Options {
	return &Options{
		ConfigPath: f.configPath,
		Platform:   platform,
		Runner:     runner,
	}
}

func (f *fixture) staged(parts ...string) string {
	return filepath.Join(append([]string{f.stagingRoot}, parts...)...)
}

// TestRun_Linux stages a synthetic tree without any tool invocation.
func TestRun_Linux(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	runner := new(recordingRunner)

	require.NoError(t, Run(context.Background(), f.options("Linux", runner)))

	for _, tool := range []string{"uic", "lrelease", "lupdate", "moc", "dot", "clang"} {
		info, err := os.Stat(f.staged("bin", tool))
		require.NoError(t, err, tool)
		require.Equal(t, os.FileMode(0o755), info.Mode().Perm(), tool)
	}

	require.NoFileExists(t, f.staged("bin", "lconvert"))
	require.FileExists(t, f.staged("lib", "QtPlugins", "platforms", "libqcocoa.dylib"))
	require.FileExists(t, f.staged("lib", "QtPlugins", "imageformats", "libqjpeg.dylib"))

	qtConf, err := os.ReadFile(f.staged("bin", "qt.conf"))
	require.NoError(t, err)
	require.Equal(t, "[Paths]\nPrefix = "+filepath.Join(f.packagesDir, "qt"), string(qtConf))

	for _, license := range []string{"qt.txt", "graphviz.txt", "llvm.txt"} {
		info, err := os.Stat(f.staged("license", license))
		require.NoError(t, err, license)
		require.Equal(t, os.FileMode(0o644), info.Mode().Perm(), license)
	}

	require.NoFileExists(t, staging.CompilerRuntimeArchive(filepath.Join(f.packagesDir, "llvm"), "5.0.2"))
	require.NoFileExists(t, f.staged(MarkerFilename))
	require.Empty(t, runner.calls)

	r, err := receipt.NewFileRepository(f.staged(config.DefaultReceiptFilename)).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Linux", r.Platform)
	require.Equal(t, f.stagingRoot, r.StagingRoot)
	require.Equal(t, "libdispatch/4.0.3-1@vuo+conan+libdispatch/stable", r.References[len(r.References)-1])
	require.Equal(t, 6, r.Counts[staging.StepBinaries])
	require.Equal(t, 2, r.Counts[staging.StepPlugins])
	require.Equal(t, 3, r.Counts[staging.StepLicenses])
	require.Equal(t, 1, r.Counts[staging.StepRemoved])
	require.Equal(t, 0, r.Counts[staging.StepPatched])
}

// TestRun_LicensePermissions tightens nested and extensionless license files too.
func TestRun_LicensePermissions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	writeFile(t, filepath.Join(f.packagesDir, "qt", "license", "nested", "LGPL.txt"), "LGPL", 0o600)
	writeFile(t, filepath.Join(f.packagesDir, "graphviz", "license", "COPYING"), "EPL", 0o777)

	require.NoError(t, Run(context.Background(), f.options("Linux", new(recordingRunner))))

	for _, license := range []string{"qt.txt", filepath.Join("nested", "LGPL.txt"), "COPYING"} {
		info, err := os.Stat(f.staged("license", license))
		require.NoError(t, err, license)
		require.Equal(t, os.FileMode(0o644), info.Mode().Perm(), license)
	}
}

// TestRun_Darwin rewrites framework references and re-signs every Qt tool.
func TestRun_Darwin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	runner := &recordingRunner{respond: func(c call) ([]byte, error) {
		if c.name == "install_name_tool" {
			return []byte(c.args[len(c.args)-1] + ": warning: changes being made to the file will invalidate the code signature\n"), nil
		}

		return []byte(c.args[len(c.args)-1] + ": replacing existing signature\n"), nil
	}}

	require.NoError(t, Run(context.Background(), f.options("Darwin", runner)))

	rules := staging.DefaultRules()
	require.Len(t, runner.calls, len(rules.PatchTools)*(len(rules.Frameworks)+1))

	qtRoot := filepath.Join(f.packagesDir, "qt")
	first := runner.calls[0]
	require.Equal(t, f.stagingRoot, first.dir)
	require.Equal(t, "install_name_tool", first.name)
	require.Equal(t, []string{
		"-change",
		"@rpath/QtCore.framework/Versions/5/QtCore",
		qtRoot + "/lib/QtCore.framework/Versions/5/QtCore",
		"bin/lrelease",
	}, first.args)

	sign := runner.calls[len(rules.Frameworks)]
	require.Equal(t, "codesign", sign.name)
	require.Equal(t, []string{"--sign", "-", "--force", "bin/lrelease"}, sign.args)

	for _, c := range runner.calls {
		require.NotContains(t, strings.Join(c.args, " "), "lconvert")
	}

	r, err := LastReceipt(context.Background(), f.options("Darwin", nil))
	require.NoError(t, err)
	require.Equal(t, "Darwin", r.Platform)
	require.Equal(t, 3, r.Counts[staging.StepPatched])
	require.Contains(t, r.References, "syphon/5-1@vuo+conan+syphon/stable")
}

// TestRun_ToolFailure aborts on a tool error that is not a known warning.
func TestRun_ToolFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	errExit := errors.New("exit status 1")
	runner := &recordingRunner{respond: func(c call) ([]byte, error) {
		if c.name == "codesign" {
			return []byte("bin/lrelease: invalid or unsupported format for signature\n"), errExit
		}

		return nil, nil
	}}

	err := Run(context.Background(), f.options("Darwin", runner))
	require.ErrorIs(t, err, common.ErrCommandFailed)
	require.ErrorIs(t, err, errExit)
	require.NoFileExists(t, f.staged(MarkerFilename))

	// Nothing after the failing step ran.
	require.NoFileExists(t, f.staged("license", "qt.txt"))
	require.FileExists(t, staging.CompilerRuntimeArchive(filepath.Join(f.packagesDir, "llvm"), "5.0.2"))
}

// TestRun_UnsupportedPlatform fails before touching the staging root.
func TestRun_UnsupportedPlatform(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	runner := new(recordingRunner)

	err := Run(context.Background(), f.options("Windows", runner))
	require.ErrorIs(t, err, manifest.ErrUnsupportedPlatform)
	require.Contains(t, err.Error(), "Windows")
	require.NoDirExists(t, f.stagingRoot)
	require.Empty(t, runner.calls)
}

// TestRun_MissingPackage fails before touching the staging root.
func TestRun_MissingPackage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.packagesDir, "syphon")))

	err := Run(context.Background(), f.options("Darwin", new(recordingRunner)))
	require.ErrorIs(t, err, ErrPackageRootMissing)
	require.NoDirExists(t, f.stagingRoot)

	// The Linux set does not need syphon.
	require.NoError(t, Run(context.Background(), f.options("Linux", new(recordingRunner))))
}

// TestRun_Rerun stages twice; the compiler archive is already gone the second time.
func TestRun_Rerun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	require.NoError(t, Run(context.Background(), f.options("Linux", nil)))

	writeFile(t, filepath.Join(f.packagesDir, "graphviz", "bin", "dot"), "dot v2", 0o755)

	require.NoError(t, Run(context.Background(), f.options("Linux", nil)))

	contents, err := os.ReadFile(f.staged("bin", "dot"))
	require.NoError(t, err)
	require.Equal(t, "dot v2", string(contents))

	entries, err := os.ReadDir(f.staged("bin"))
	require.NoError(t, err)

	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".old"), e.Name())
		require.False(t, strings.HasSuffix(e.Name(), ".new"), e.Name())
	}

	r, err := LastReceipt(context.Background(), f.options("", nil))
	require.NoError(t, err)
	require.Equal(t, 0, r.Counts[staging.StepRemoved])
}

// TestRun_RootsFile locates packages through a roots file with relative entries.
func TestRun_RootsFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	roots := map[string]string{}
	for _, name := range []string{"graphviz", "llvm", "qt", "libdispatch"} {
		roots[name] = filepath.Join("packages", name)
	}

	data, err := yaml.Marshal(roots)
	require.NoError(t, err)

	rootsFile := filepath.Join(f.dir, "roots.yaml")
	writeFile(t, rootsFile, string(data), 0o644)

	opts := f.options("Linux", nil)
	opts.RootsFile = rootsFile
	require.NoError(t, Run(context.Background(), opts))
	require.FileExists(t, f.staged("bin", "dot"))

	// syphon is missing from the roots file.
	opts = f.options("Darwin", new(recordingRunner))
	opts.RootsFile = rootsFile
	require.ErrorIs(t, Run(context.Background(), opts), ErrPackageRootMissing)
}

// TestRun_MarkerHeld refuses to stage while a live process holds the marker.
func TestRun_MarkerHeld(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.stagingRoot, 0o755))

	marker := f.staged(MarkerFilename)
	writeFile(t, marker, strconv.Itoa(os.Getppid()), 0o600)

	err := Run(context.Background(), f.options("Linux", nil))
	require.ErrorIs(t, err, ErrStagingInProgress)
	require.FileExists(t, marker)
	require.NoFileExists(t, f.staged("bin", "dot"))

	// A marker left by a process that no longer exists is removed.
	writeFile(t, marker, "99999999", 0o600)
	require.NoError(t, Run(context.Background(), f.options("Linux", nil)))
	require.NoFileExists(t, marker)
}

// TestLastReceipt_NotFound reports a root that was never staged.
func TestLastReceipt_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := LastReceipt(context.Background(), f.options("", nil))
	require.ErrorIs(t, err, receipt.ErrNotFound)
}
