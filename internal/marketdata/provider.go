package marketdata

import (
	"context"
	"time"

	"github.com/quantified/hindcast/internal/core"
)

// Provider defines the interface for historical bar sources.
type Provider interface {
	// Metadata
	Name() string

	// FetchHistory returns bars for the symbol and interval whose timestamps
	// fall inside [start, end]. A zero start or end leaves that side of the
	// range unbounded. Bars are returned in increasing timestamp order.
	FetchHistory(ctx context.Context, symbol, interval string, start, end time.Time) ([]core.Bar, error)
}
