package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rickgao/mbp-history/internal/store"
)

// Result holds the records of one retrieval. Only the slice matching Schema
// is populated. Symbols maps each resolved ticker to its instrument id.
type Result struct {
	Schema  Schema
	Symbols map[string]int64

	Mbp1   []Mbp1Record  `json:",omitempty"`
	Trades []TradeRecord `json:",omitempty"`
	TBBO   []TBBORecord  `json:",omitempty"`
	OHLCV  []OHLCVBar    `json:",omitempty"`
	BBO    []BBOBar      `json:",omitempty"`
}

func newResult(schema Schema) *Result {
	return &Result{Schema: schema, Symbols: make(map[string]int64)}
}

// Len returns the number of records.
func (r *Result) Len() int {
	return len(r.Mbp1) + len(r.Trades) + len(r.TBBO) + len(r.OHLCV) + len(r.BBO)
}

func (r *Result) merge(o *Result) {
	for k, v := range o.Symbols {
		r.Symbols[k] = v
	}
	r.Mbp1 = append(r.Mbp1, o.Mbp1...)
	r.Trades = append(r.Trades, o.Trades...)
	r.TBBO = append(r.TBBO, o.TBBO...)
	r.OHLCV = append(r.OHLCV, o.OHLCV...)
	r.BBO = append(r.BBO, o.BBO...)
}

// sort orders records by time. Records with equal times keep symbol order.
func (r *Result) sort() {
	sort.SliceStable(r.Mbp1, func(i, j int) bool { return r.Mbp1[i].TsEvent < r.Mbp1[j].TsEvent })
	sort.SliceStable(r.Trades, func(i, j int) bool { return r.Trades[i].TsEvent < r.Trades[j].TsEvent })
	sort.SliceStable(r.TBBO, func(i, j int) bool { return r.TBBO[i].Trade.TsEvent < r.TBBO[j].Trade.TsEvent })
	sort.SliceStable(r.OHLCV, func(i, j int) bool { return r.OHLCV[i].Ts < r.OHLCV[j].Ts })
	sort.SliceStable(r.BBO, func(i, j int) bool { return r.BBO[i].Ts < r.BBO[j].Ts })
}

// Retrieve runs the whole retrieval, fetching batch nanoseconds per round
// trip. Unknown symbols are skipped and left out of Symbols.
func (e *Engine) Retrieve(ctx context.Context, params RetrieveParams, batch int64) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	out := newResult(params.Schema)
	for {
		res, ok, err := e.RetrieveBatch(ctx, &params, batch)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out.merge(res)
	}
	return out, nil
}

// RetrieveBatch fetches the next window of params and advances it. It
// returns false when the range is exhausted.
func (e *Engine) RetrieveBatch(ctx context.Context, params *RetrieveParams, batch int64) (*Result, bool, error) {
	if err := params.validateRequest(); err != nil {
		return nil, false, err
	}
	w, ok := params.NextWindow(batch)
	if !ok {
		return nil, false, nil
	}

	res := newResult(params.Schema)
	for _, ticker := range params.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		id, err := e.registry.Resolve(ctx, ticker)
		if errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("skipping unknown symbol", "ticker", ticker)
			continue
		}
		if err != nil {
			return nil, false, err
		}
		res.Symbols[ticker] = id

		if err := e.fetch(ctx, res, params.Schema, ticker, w); err != nil {
			return nil, false, fmt.Errorf("retrieve %s %s [%d, %d): %w", params.Schema, ticker, w.Start, w.End, err)
		}
	}
	res.sort()

	e.logger.Debug("retrieved window",
		"schema", params.Schema,
		"start", w.Start,
		"end", w.End,
		"records", res.Len(),
	)
	return res, true, nil
}

// fetch appends one symbol's records for window w.
func (e *Engine) fetch(ctx context.Context, res *Result, schema Schema, ticker string, w Window) error {
	from, to := w.Start, w.End-1
	interval := schema.Interval()

	switch schema {
	case SchemaMbp1:
		recs, err := e.Ticks(ctx, ticker, from, to)
		res.Mbp1 = append(res.Mbp1, recs...)
		return err
	case SchemaTrade:
		recs, err := e.Trades(ctx, ticker, from, to)
		res.Trades = append(res.Trades, recs...)
		return err
	case SchemaTBBO:
		recs, err := e.TBBO(ctx, ticker, from, to)
		res.TBBO = append(res.TBBO, recs...)
		return err
	case SchemaOHLCV1S, SchemaOHLCV1M, SchemaOHLCV1H, SchemaOHLCV1D:
		recs, err := e.OHLCV(ctx, ticker, from, to, interval)
		res.OHLCV = append(res.OHLCV, recs...)
		return err
	case SchemaBBO1S, SchemaBBO1M:
		// BBO bars cover (start, end], stamped with their end.
		recs, err := e.BBOBars(ctx, ticker, from+1, to+1, interval)
		res.BBO = append(res.BBO, recs...)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSchema, schema)
	}
}
