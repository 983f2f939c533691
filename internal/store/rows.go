package store

import (
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/mbp-history/internal/model"
)

// Column types: unsigned fields are widened to BIGINT, enums and flags are
// stored as INTEGER byte codes.

func tickArgs(t model.Tick) []any {
	return []any{
		t.InstrumentID,
		t.TsEvent,
		t.TsRecv,
		t.TsInDelta,
		t.Price,
		int64(t.Size),
		int32(t.Action),
		int32(t.Side),
		int32(t.Flags),
		int64(t.Sequence),
		int64(t.Discriminator),
		t.OrderBookHash,
	}
}

func levelArgs(tickID int64, l model.DepthLevel) []any {
	return []any{
		tickID,
		l.Depth,
		l.BidPx,
		widen(l.BidSz),
		widen(l.BidCt),
		l.AskPx,
		widen(l.AskSz),
		widen(l.AskCt),
	}
}

// widen converts an optional unsigned field to its column type, keeping nil.
func widen(v *uint32) *int64 {
	if v == nil {
		return nil
	}
	w := int64(*v)
	return &w
}

// narrow is the inverse of widen.
func narrow(v *int64) *uint32 {
	if v == nil {
		return nil
	}
	n := uint32(*v)
	return &n
}

func scanTick(row pgx.Row) (model.Tick, error) {
	var (
		t                             model.Tick
		size, sequence, discriminator int64
		action, side, flags           int32
	)
	err := row.Scan(
		&t.ID,
		&t.InstrumentID,
		&t.TsEvent,
		&t.TsRecv,
		&t.TsInDelta,
		&t.Price,
		&size,
		&action,
		&side,
		&flags,
		&sequence,
		&discriminator,
		&t.OrderBookHash,
	)
	if err != nil {
		return model.Tick{}, err
	}
	t.Size = uint32(size)
	t.Action = model.Action(action)
	t.Side = model.Side(side)
	t.Flags = uint8(flags)
	t.Sequence = uint32(sequence)
	t.Discriminator = uint32(discriminator)
	return t, nil
}

// levelRow holds a bid_ask row as scanned from the database.
type levelRow struct {
	depth               int32
	bidPx, bidSz, bidCt *int64
	askPx, askSz, askCt *int64
}

func (r *levelRow) dest() []any {
	return []any{&r.depth, &r.bidPx, &r.bidSz, &r.bidCt, &r.askPx, &r.askSz, &r.askCt}
}

func (r *levelRow) toModel() model.DepthLevel {
	return model.DepthLevel{
		Depth: r.depth,
		BidPx: r.bidPx,
		BidSz: narrow(r.bidSz),
		BidCt: narrow(r.bidCt),
		AskPx: r.askPx,
		AskSz: narrow(r.askSz),
		AskCt: narrow(r.askCt),
	}
}

func scanLevel(row pgx.Row) (model.DepthLevel, error) {
	var r levelRow
	if err := row.Scan(r.dest()...); err != nil {
		return model.DepthLevel{}, err
	}
	return r.toModel(), nil
}
