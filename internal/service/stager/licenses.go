package stager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phayes/permbits"

	"github.com/oshokin/depstage/internal/logger"
)

// tightenLicenses sets u=rw,go=r on every regular file the license step staged into licenseDir.
func tightenLicenses(ctx context.Context, licenseDir string, planned []plannedCopy) error {
	tightened := 0

	for _, p := range planned {
		target := filepath.Join(licenseDir, p.rel)

		info, err := os.Lstat(target)
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			continue
		}

		if err = permbits.Chmod(target, licensePermissions()); err != nil {
			return fmt.Errorf("chmod %s: %w", target, err)
		}

		tightened++
	}

	logger.DebugKV(ctx, "Tightened license permissions", "files", tightened)

	return nil
}

// licensePermissions is u=rw,go=r.
func licensePermissions() permbits.PermissionBits {
	var perms permbits.PermissionBits

	perms.SetUserRead(true)
	perms.SetUserWrite(true)
	perms.SetGroupRead(true)
	perms.SetOtherRead(true)

	return perms
}
