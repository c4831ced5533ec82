package stager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/oshokin/depstage/internal/domain/staging"
	"github.com/oshokin/depstage/internal/logger"
	"github.com/oshokin/depstage/internal/service/common"
)

// errPatchToolMissing is returned when a tool to patch was not staged.
var errPatchToolMissing = errors.New("tool to patch was not staged")

// patchTools points the framework references of the Qt tools at the fetched Qt
// package and re-signs each tool, since rewriting load commands invalidates the signature.
func (s *stager) patchTools(ctx context.Context, qtRoot string) (int, error) {
	binDir := s.rules.Binaries.Destination

	for _, tool := range s.rules.PatchTools {
		// Relative to the staging root, which is the working directory of both tools.
		target := path.Join(filepath.ToSlash(binDir), tool)

		if _, err := os.Stat(filepath.Join(s.cfg.StagingRoot, binDir, tool)); err != nil {
			return 0, fmt.Errorf("%w: %s: %w", errPatchToolMissing, target, err)
		}

		for _, framework := range s.rules.Frameworks {
			err := common.RunFiltered(ctx, s.runner, s.rules.BenignPatchOutput, s.cfg.StagingRoot,
				s.cfg.InstallNameTool, "-change",
				staging.RpathReference(framework, s.rules.FrameworkMajor),
				staging.InstalledReference(qtRoot, framework, s.rules.FrameworkMajor),
				target)
			if err != nil {
				return 0, fmt.Errorf("patch %s: %w", target, err)
			}
		}

		err := common.RunFiltered(ctx, s.runner, s.rules.BenignSignOutput, s.cfg.StagingRoot,
			s.cfg.Codesign, "--sign", "-", "--force", target)
		if err != nil {
			return 0, fmt.Errorf("sign %s: %w", target, err)
		}

		logger.InfoKV(ctx, "Patched and re-signed tool", "tool", target)
	}

	return len(s.rules.PatchTools), nil
}
