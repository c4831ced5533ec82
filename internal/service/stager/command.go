package stager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/domain/manifest"
	"github.com/oshokin/depstage/internal/domain/staging"
	"github.com/oshokin/depstage/internal/logger"
	"github.com/oshokin/depstage/internal/repository/receipt"
	"github.com/oshokin/depstage/internal/service/common"
	"github.com/oshokin/depstage/internal/version"
)

// Options are inputs accepted by the stager entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Platform overrides host detection.
	Platform string
	// StagingRoot overrides the configured staging root.
	StagingRoot string
	// PackagesDir overrides the configured packages directory.
	PackagesDir string
	// RootsFile overrides the configured roots file.
	RootsFile string
	// Runner executes install_name_tool and codesign. Defaults to an exec based runner.
	Runner common.Runner
	// Rules overrides the staging layout. Defaults to staging.DefaultRules.
	Rules *staging.Rules
}

// stager holds the state of a single staging pass.
type stager struct {
	cfg      *config.Config
	platform manifest.Platform
	manifest *manifest.Manifest
	decls    []manifest.Declaration
	roots    map[string]string
	rules    *staging.Rules
	runner   common.Runner
	receipts receipt.Repository
	counts   map[string]int
}

// Run stages the packages resolved for the platform and records a receipt.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "depstage-stager")

	s, err := newStager(ctx, opts)
	if err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "platform", s.platform)

	if err = s.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Staging failed", "error", err)
		return err
	}

	logger.InfoKV(ctx, "Staging completed", "root", s.cfg.StagingRoot)

	return nil
}

// newStager loads settings and resolves declarations and package roots.
// Nothing is written before this returns successfully.
func newStager(ctx context.Context, opts *Options) (*stager, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(cfg, opts)

	platform := manifest.DetectPlatform()
	if cfg.Platform != "" {
		platform = manifest.ParsePlatform(cfg.Platform)
	}

	m, err := manifest.LoadOrDefault(cfg.ManifestFile)
	if err != nil {
		return nil, err
	}

	decls, err := m.Resolve(platform)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Resolved dependency declarations", "platform", platform, "count", len(decls))

	rules := opts.Rules
	if rules == nil {
		rules = staging.DefaultRules()
	}

	if err = rules.Validate(); err != nil {
		return nil, fmt.Errorf("staging rules: %w", err)
	}

	if cfg.StagingRoot, err = filepath.Abs(cfg.StagingRoot); err != nil {
		return nil, fmt.Errorf("resolve staging root: %w", err)
	}

	roots, err := locateRoots(cfg, decls)
	if err != nil {
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = common.NewExecRunner(common.WithTimeout(cfg.ToolTimeout))
	}

	return &stager{
		cfg:      cfg,
		platform: platform,
		manifest: m,
		decls:    decls,
		roots:    roots,
		rules:    rules,
		runner:   runner,
		receipts: receipt.NewFileRepository(cfg.ReceiptPath()),
		counts:   make(map[string]int, len(stepOrder)),
	}, nil
}

// applyOverrides copies non-empty command line values over the loaded settings.
func applyOverrides(cfg *config.Config, opts *Options) {
	if opts.Platform != "" {
		cfg.Platform = opts.Platform
	}

	if opts.StagingRoot != "" {
		cfg.StagingRoot = opts.StagingRoot
	}

	if opts.PackagesDir != "" {
		cfg.PackagesDir = opts.PackagesDir
		cfg.RootsFile = ""
	}

	if opts.RootsFile != "" {
		cfg.RootsFile = opts.RootsFile
	}
}

//nolint:gochecknoglobals // Receipt key order.
var stepOrder = []string{
	staging.StepBinaries,
	staging.StepPlugins,
	staging.StepPatched,
	staging.StepLicenses,
	staging.StepRemoved,
}

// Run executes the staging steps in order:
// 1) Copy binaries.
// 2) Copy plugins.
// 3) Write qt.conf.
// 4) Patch and re-sign the Qt tools (macOS).
// 5) Copy licenses and tighten their permissions.
// 6) Remove the compiler-rt archive.
// 7) Save the receipt.
func (s *stager) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.StagingRoot, dirPermissions); err != nil {
		return fmt.Errorf("create staging root: %w", err)
	}

	release, err := acquireMarker(ctx, s.cfg.StagingRoot)
	if err != nil {
		return err
	}

	defer release()

	sources := s.sources()

	binaries, err := collect(s.rules.Binaries, sources)
	if err != nil {
		return fmt.Errorf("collect binaries: %w", err)
	}

	if err = warnRunningBinaries(ctx, binaryNames(binaries)); err != nil {
		return err
	}

	logger.Info(ctx, "Copying binaries")

	if s.counts[staging.StepBinaries], err = copyEntry(ctx, s.cfg.StagingRoot, s.rules.Binaries, binaries); err != nil {
		return fmt.Errorf("copy binaries: %w", err)
	}

	logger.Info(ctx, "Copying plugins")

	if s.counts[staging.StepPlugins], err = s.copyAll(ctx, s.rules.Plugins, sources); err != nil {
		return fmt.Errorf("copy plugins: %w", err)
	}

	qtRoot, err := s.rootOf(s.rules.QtPackage)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Writing toolkit configuration", "prefix", qtRoot)

	if err = s.writeQtConf(qtRoot); err != nil {
		return err
	}

	if s.platform == manifest.Darwin {
		logger.Info(ctx, "Rewriting framework references of the Qt tools")

		if s.counts[staging.StepPatched], err = s.patchTools(ctx, qtRoot); err != nil {
			return err
		}
	} else {
		logger.DebugKV(ctx, "Skipping framework rewriting", "reason", "not a Mach-O platform")
	}

	logger.Info(ctx, "Copying licenses")

	licenses, err := collect(s.rules.Licenses, sources)
	if err != nil {
		return fmt.Errorf("collect licenses: %w", err)
	}

	if s.counts[staging.StepLicenses], err = copyEntry(ctx, s.cfg.StagingRoot, s.rules.Licenses, licenses); err != nil {
		return fmt.Errorf("copy licenses: %w", err)
	}

	if err = tightenLicenses(ctx, filepath.Join(s.cfg.StagingRoot, s.rules.Licenses.Destination), licenses); err != nil {
		return err
	}

	if s.counts[staging.StepRemoved], err = s.removeCompilerRuntime(ctx); err != nil {
		return err
	}

	return s.saveReceipt(ctx)
}

// sources lists package roots in declaration order.
func (s *stager) sources() []source {
	sources := make([]source, 0, len(s.decls))
	for _, d := range s.decls {
		sources = append(sources, source{name: d.Name, root: s.roots[d.Name]})
	}

	return sources
}

func (s *stager) copyAll(ctx context.Context, entry staging.Entry, sources []source) (int, error) {
	planned, err := collect(entry, sources)
	if err != nil {
		return 0, err
	}

	return copyEntry(ctx, s.cfg.StagingRoot, entry, planned)
}

// rootOf returns the fetched root of a declared package.
func (s *stager) rootOf(name string) (string, error) {
	if _, err := s.manifest.Find(s.platform, name); err != nil {
		return "", err
	}

	return s.roots[name], nil
}

// writeQtConf makes Qt load its plugins from the fetched package instead of its build-time prefix.
func (s *stager) writeQtConf(qtRoot string) error {
	dir := filepath.Join(s.cfg.StagingRoot, s.rules.Binaries.Destination)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, s.rules.QtConfName)

	//nolint:gosec // qt.conf is read by every Qt tool and must be world readable.
	if err := os.WriteFile(path, []byte(staging.QtConf(qtRoot)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

// removeCompilerRuntime deletes the compiler-rt archive; an absent file is fine.
func (s *stager) removeCompilerRuntime(ctx context.Context) (int, error) {
	llvm, err := s.manifest.Find(s.platform, s.rules.CompilerPackage)
	if errors.Is(err, manifest.ErrNotDeclared) {
		logger.DebugKV(ctx, "Compiler package not declared, nothing to remove", "package", s.rules.CompilerPackage)
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	archive := staging.CompilerRuntimeArchive(s.roots[llvm.Name], llvm.Upstream())

	if err = os.Remove(archive); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.DebugKV(ctx, "Compiler runtime archive already absent", "path", archive)
			return 0, nil
		}

		return 0, fmt.Errorf("remove %s: %w", archive, err)
	}

	logger.InfoKV(ctx, "Removed compiler runtime archive", "path", archive)

	return 1, nil
}

// saveReceipt records the pass.
func (s *stager) saveReceipt(ctx context.Context) error {
	actor, err := common.DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Unable to detect actor for the receipt", "error", err)
	}

	r := &staging.Receipt{
		Timestamp:   time.Now().UTC(),
		Actor:       actor,
		ToolVersion: version.Short(),
		Platform:    s.platform.String(),
		StagingRoot: s.cfg.StagingRoot,
		References:  manifest.References(s.decls),
		Counts:      s.counts,
	}

	if err = s.receipts.Save(ctx, r); err != nil {
		return err
	}

	kvs := make([]any, 0, 2*len(stepOrder))
	for _, step := range stepOrder {
		kvs = append(kvs, step, s.counts[step])
	}

	logger.InfoKV(ctx, "Saved staging receipt", kvs...)

	return nil
}

// binaryNames returns the base names of the planned binaries.
func binaryNames(planned []plannedCopy) map[string]struct{} {
	names := make(map[string]struct{}, len(planned))
	for _, p := range planned {
		names[filepath.Base(p.rel)] = struct{}{}
	}

	return names
}
