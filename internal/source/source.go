// Package source provides the read-only record sources a run consumes.
package source

import (
	"context"

	"github.com/roach88/chartgen/internal/ir"
	"github.com/roach88/chartgen/internal/store"
)

// Source yields the analysis records of one scan.
type Source interface {
	Records(ctx context.Context) ([]ir.Record, error)
}

var (
	_ Source = (*store.Store)(nil)
	_ Source = (*File)(nil)
)
