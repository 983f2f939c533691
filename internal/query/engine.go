package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/mbp-history/internal/fill"
	"github.com/rickgao/mbp-history/internal/model"
	"github.com/rickgao/mbp-history/internal/store"
)

var (
	// ErrInvalidRange is returned when from is after to or an interval is not positive.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidSchema is returned for an unknown retrieval schema.
	ErrInvalidSchema = errors.New("invalid schema")
)

// Engine answers read queries. It takes no locks against writers; each
// ledger read sees committed data.
type Engine struct {
	registry store.Registry
	ticks    store.TickLedger
	depth    store.DepthLedger
	logger   *slog.Logger
}

// NewEngine creates an Engine over the given ledgers.
func NewEngine(registry store.Registry, ticks store.TickLedger, depth store.DepthLedger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		ticks:    ticks,
		depth:    depth,
		logger:   logger,
	}
}

// BookAt returns the book as of ts: the levels of the latest tick with
// ts_event <= ts. The bool is false when no such tick exists.
func (e *Engine) BookAt(ctx context.Context, ticker string, ts int64) (Book, bool, error) {
	id, err := e.registry.Resolve(ctx, ticker)
	if err != nil {
		return Book{}, false, err
	}

	anchor, ok, err := e.ticks.LatestBefore(ctx, id, ts)
	if err != nil {
		return Book{}, false, fmt.Errorf("book at %d for %s: %w", ts, ticker, err)
	}
	if !ok {
		return Book{}, false, nil
	}

	levels, err := e.depth.LevelsFor(ctx, anchor.ID)
	if err != nil {
		return Book{}, false, fmt.Errorf("book at %d for %s: %w", ts, ticker, err)
	}

	return Book{
		InstrumentID: id,
		Ticker:       ticker,
		TickID:       anchor.ID,
		TsEvent:      anchor.TsEvent,
		Sequence:     anchor.Sequence,
		Levels:       levels,
	}, true, nil
}

// BBOSeries returns one point per tick in [from, to]. Each of the six
// top-of-book fields is forward-filled on its own; a field stays absent
// until the first tick in range reports it.
func (e *Engine) BBOSeries(ctx context.Context, ticker string, from, to int64) ([]BboPoint, error) {
	ticks, tops, err := e.load(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}

	var f bboFill
	points := make([]BboPoint, 0, len(ticks))
	for _, t := range ticks {
		top, ok := tops[t.ID]
		points = append(points, f.step(t, top, ok))
	}
	return points, nil
}

// Ticks returns the raw tick stream in [from, to] with each tick's depth-0
// level. Ticks without a depth-0 level carry an empty Top.
func (e *Engine) Ticks(ctx context.Context, ticker string, from, to int64) ([]Mbp1Record, error) {
	ticks, tops, err := e.load(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}

	records := make([]Mbp1Record, 0, len(ticks))
	for _, t := range ticks {
		records = append(records, toMbp1(t, tops[t.ID]))
	}
	return records, nil
}

// Trades returns the trade ticks in [from, to].
func (e *Engine) Trades(ctx context.Context, ticker string, from, to int64) ([]TradeRecord, error) {
	id, err := e.resolveRange(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}

	ticks, err := e.ticks.Range(ctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("trades for %s: %w", ticker, err)
	}

	var trades []TradeRecord
	for _, t := range ticks {
		if t.Action == model.ActionTrade {
			trades = append(trades, toTrade(t))
		}
	}
	return trades, nil
}

// TBBO returns each trade in [from, to] with the forward-filled top of book
// after the trade's tick.
func (e *Engine) TBBO(ctx context.Context, ticker string, from, to int64) ([]TBBORecord, error) {
	ticks, tops, err := e.load(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}

	var (
		f       bboFill
		records []TBBORecord
	)
	for _, t := range ticks {
		top, ok := tops[t.ID]
		pt := f.step(t, top, ok)
		if t.Action == model.ActionTrade {
			records = append(records, TBBORecord{Trade: toTrade(t), BBO: pt})
		}
	}
	return records, nil
}

func (e *Engine) resolveRange(ctx context.Context, ticker string, from, to int64) (int64, error) {
	if from > to {
		return 0, fmt.Errorf("%w: from %d after to %d", ErrInvalidRange, from, to)
	}
	return e.registry.Resolve(ctx, ticker)
}

// load returns the ticks in range and their depth-0 levels keyed by tick id.
func (e *Engine) load(ctx context.Context, ticker string, from, to int64) ([]model.Tick, map[int64]model.DepthLevel, error) {
	id, err := e.resolveRange(ctx, ticker, from, to)
	if err != nil {
		return nil, nil, err
	}

	ticks, err := e.ticks.Range(ctx, id, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("load ticks for %s: %w", ticker, err)
	}
	if len(ticks) == 0 {
		return nil, nil, nil
	}

	ids := make([]int64, len(ticks))
	for i, t := range ticks {
		ids[i] = t.ID
	}
	tops, err := e.depth.TopLevels(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load levels for %s: %w", ticker, err)
	}

	e.logger.Debug("loaded ticks",
		"ticker", ticker,
		"from", from,
		"to", to,
		"ticks", len(ticks),
	)
	return ticks, tops, nil
}

// bboFill forward-fills each top-of-book field independently.
type bboFill struct {
	bidPx fill.Last[int64]
	bidSz fill.Last[uint32]
	bidCt fill.Last[uint32]
	askPx fill.Last[int64]
	askSz fill.Last[uint32]
	askCt fill.Last[uint32]
}

// step folds one tick. A tick without a depth-0 level reports every field
// absent.
func (f *bboFill) step(t model.Tick, top model.DepthLevel, ok bool) BboPoint {
	if !ok {
		top = model.DepthLevel{}
	}
	f.bidPx.Step(top.BidPx)
	f.bidSz.Step(top.BidSz)
	f.bidCt.Step(top.BidCt)
	f.askPx.Step(top.AskPx)
	f.askSz.Step(top.AskSz)
	f.askCt.Step(top.AskCt)

	return BboPoint{
		Ts:       t.TsEvent,
		Sequence: t.Sequence,
		BidPx:    f.bidPx.Ptr(),
		BidSz:    f.bidSz.Ptr(),
		BidCt:    f.bidCt.Ptr(),
		AskPx:    f.askPx.Ptr(),
		AskSz:    f.askSz.Ptr(),
		AskCt:    f.askCt.Ptr(),
	}
}
