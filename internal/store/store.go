package store

import (
	"context"

	"github.com/rickgao/mbp-history/internal/model"
)

// Outcome is the result of appending one tick.
type Outcome int

const (
	// Inserted means the tick and its levels were committed.
	Inserted Outcome = iota + 1
	// Duplicate means an identical event was already stored; nothing was written.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// BatchOutcome summarizes AppendBatch. Rejected events did not abort their
// siblings.
type BatchOutcome struct {
	Inserted   int
	Duplicates int
	Rejected   []*IngestError
}

// Registry maps tickers to instruments and tracks their availability window.
type Registry interface {
	// Resolve returns the id of a known ticker, or ErrNotFound.
	Resolve(ctx context.Context, ticker string) (int64, error)

	// GetOrCreate returns the id of inst.Ticker, registering it if needed.
	// Only the descriptive fields of inst are used on creation.
	GetOrCreate(ctx context.Context, inst model.Instrument) (int64, error)

	// Get returns an instrument by id.
	Get(ctx context.Context, id int64) (model.Instrument, error)

	// List returns instruments ordered by ticker.
	List(ctx context.Context, activeOnly bool) ([]model.Instrument, error)

	// UpdateAvailability widens the availability bounds to include ts.
	UpdateAvailability(ctx context.Context, id, ts int64) error

	Activate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error

	// Delete removes the instrument and, with it, every tick and depth level
	// it owns. This is destructive and meant for admin use only.
	Delete(ctx context.Context, id int64) error
}

// TickLedger is the append-only, deduplicated store of market-by-price events.
type TickLedger interface {
	// Append stores one tick with its levels.
	Append(ctx context.Context, tick model.Tick) (Outcome, error)

	// AppendBatch stores ticks in one transaction. Each tick is atomic on its
	// own; invariant and constraint failures are reported in Rejected. The
	// registry availability update commits together with the inserts.
	AppendBatch(ctx context.Context, ticks []model.Tick) (BatchOutcome, error)

	// Range returns ticks with from <= ts_event <= to, ordered by
	// (ts_event, sequence). Levels are not loaded.
	Range(ctx context.Context, instrumentID, from, to int64) ([]model.Tick, error)

	// LatestBefore returns the most recent tick with ts_event <= ts.
	// Levels are not loaded.
	LatestBefore(ctx context.Context, instrumentID, ts int64) (model.Tick, bool, error)

	// Count returns the number of ticks stored for an instrument.
	Count(ctx context.Context, instrumentID int64) (int64, error)
}

// DepthLedger reads the book levels attached to ticks. Levels are written by
// TickLedger in the same transaction as their tick.
type DepthLedger interface {
	// LevelsFor returns a tick's levels ordered by depth.
	LevelsFor(ctx context.Context, tickID int64) ([]model.DepthLevel, error)

	// TopLevels returns the depth-0 level of each tick that has one.
	TopLevels(ctx context.Context, tickIDs []int64) (map[int64]model.DepthLevel, error)
}

// Store is the full storage surface.
type Store interface {
	Registry
	TickLedger
	DepthLedger
}

// appendOne adapts AppendBatch to a single event.
func appendOne(ctx context.Context, l TickLedger, tick model.Tick) (Outcome, error) {
	out, err := l.AppendBatch(ctx, []model.Tick{tick})
	if err != nil {
		return 0, err
	}
	if len(out.Rejected) > 0 {
		return 0, out.Rejected[0]
	}
	if out.Duplicates > 0 {
		return Duplicate, nil
	}
	return Inserted, nil
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
