package stager

import (
	"context"
	"fmt"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/domain/staging"
	"github.com/oshokin/depstage/internal/repository/receipt"
)

// LastReceipt loads the receipt of the most recent pass into the configured staging root.
// receipt.ErrNotFound is returned when the root has never been staged.
func LastReceipt(ctx context.Context, opts *Options) (*staging.Receipt, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(cfg, opts)

	return receipt.NewFileRepository(cfg.ReceiptPath()).Load(ctx)
}
