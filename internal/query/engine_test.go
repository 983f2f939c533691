package query

import (
	"context"
	"errors"
	"testing"

	"github.com/rickgao/mbp-history/internal/model"
	"github.com/rickgao/mbp-history/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Memory) {
	t.Helper()
	m := store.NewMemory(nil)
	return NewEngine(m, m, m, nil), m
}

func register(t *testing.T, m *store.Memory, ticker string) int64 {
	t.Helper()
	id, err := m.GetOrCreate(context.Background(), model.Instrument{Ticker: ticker})
	if err != nil {
		t.Fatalf("GetOrCreate(%q) error = %v", ticker, err)
	}
	return id
}

func appendTick(t *testing.T, m *store.Memory, tick model.Tick) {
	t.Helper()
	out, err := m.Append(context.Background(), tick)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if out != store.Inserted {
		t.Fatalf("Append() = %v, want inserted", out)
	}
}

func tick(id, ts int64, seq uint32, action model.Action, levels ...model.DepthLevel) model.Tick {
	return model.Tick{
		InstrumentID: id,
		TsEvent:      ts,
		TsRecv:       ts + 10,
		Price:        100,
		Size:         1,
		Action:       action,
		Side:         model.SideBid,
		Sequence:     seq,
		Levels:       levels,
	}
}

func trade(id, ts int64, seq uint32, px int64, sz uint32) model.Tick {
	t := tick(id, ts, seq, model.ActionTrade)
	t.Price = px
	t.Size = sz
	t.Side = model.SideAsk
	return t
}

func derefI64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefU32(p *uint32) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestBookAt_EndToEnd(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	id := register(t, m, "ABC")

	appendTick(t, m, tick(id, 1000, 1, model.ActionAdd,
		model.DepthLevel{Depth: 0, BidPx: model.Int64(100), AskPx: model.Int64(101)}))

	book, ok, err := e.BookAt(ctx, "ABC", 1000)
	if err != nil {
		t.Fatalf("BookAt(1000) error = %v", err)
	}
	if !ok {
		t.Fatal("BookAt(1000) should find the tick at 1000")
	}
	top, ok := book.Top()
	if !ok {
		t.Fatal("book has no depth-0 level")
	}
	if *top.BidPx != 100 || *top.AskPx != 101 {
		t.Errorf("top = bid %d ask %d, want bid 100 ask 101", *top.BidPx, *top.AskPx)
	}
	if top.BidSz != nil || top.AskSz != nil {
		t.Error("unreported sizes should stay absent")
	}
	if book.TsEvent != 1000 || book.InstrumentID != id || book.Ticker != "ABC" {
		t.Errorf("book = %+v, want ts 1000 for ABC", book)
	}

	if _, ok, err := e.BookAt(ctx, "ABC", 999); err != nil || ok {
		t.Errorf("BookAt(999) = ok %v, err %v; want absent", ok, err)
	}
}

func TestBookAt_LatestAnchor(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	id := register(t, m, "ABC")

	appendTick(t, m, tick(id, 100, 1, model.ActionAdd,
		model.DepthLevel{Depth: 0, BidPx: model.Int64(10)},
		model.DepthLevel{Depth: 1, BidPx: model.Int64(9)}))
	appendTick(t, m, tick(id, 200, 2, model.ActionAdd,
		model.DepthLevel{Depth: 0, BidPx: model.Int64(11)}))

	tests := []struct {
		ts         int64
		wantBid    int64
		wantLevels int
	}{
		{ts: 100, wantBid: 10, wantLevels: 2},
		{ts: 150, wantBid: 10, wantLevels: 2},
		{ts: 200, wantBid: 11, wantLevels: 1},
		{ts: 1 << 40, wantBid: 11, wantLevels: 1},
	}

	for _, tt := range tests {
		book, ok, err := e.BookAt(ctx, "ABC", tt.ts)
		if err != nil || !ok {
			t.Fatalf("BookAt(%d) = ok %v, err %v", tt.ts, ok, err)
		}
		if len(book.Levels) != tt.wantLevels {
			t.Errorf("BookAt(%d) levels = %d, want %d", tt.ts, len(book.Levels), tt.wantLevels)
		}
		if top, _ := book.Top(); *top.BidPx != tt.wantBid {
			t.Errorf("BookAt(%d) bid = %d, want %d", tt.ts, *top.BidPx, tt.wantBid)
		}
	}
}

func TestBookAt_UnknownTicker(t *testing.T) {
	e, _ := newTestEngine(t)

	_, _, err := e.BookAt(context.Background(), "NOPE", 1)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("BookAt() error = %v, want ErrNotFound", err)
	}
}

func TestBBOSeries_ForwardFill(t *testing.T) {
	e, m := newTestEngine(t)
	id := register(t, m, "ABC")

	appendTick(t, m, tick(id, 1, 1, model.ActionAdd,
		model.DepthLevel{Depth: 0, BidPx: model.Int64(5), BidSz: model.Uint32(3)}))
	appendTick(t, m, tick(id, 2, 2, model.ActionAdd,
		model.DepthLevel{Depth: 0, AskPx: model.Int64(8)}))
	appendTick(t, m, tick(id, 3, 3, model.ActionCancel))
	appendTick(t, m, tick(id, 4, 4, model.ActionAdd,
		model.DepthLevel{Depth: 0, BidPx: model.Int64(7), AskSz: model.Uint32(0)}))
	appendTick(t, m, tick(id, 5, 5, model.ActionCancel,
		model.DepthLevel{Depth: 1, BidPx: model.Int64(1)}))

	points, err := e.BBOSeries(context.Background(), "ABC", 1, 5)
	if err != nil {
		t.Fatalf("BBOSeries() error = %v", err)
	}
	if len(points) != 5 {
		t.Fatalf("len(points) = %d, want 5", len(points))
	}

	want := []struct {
		bidPx, bidSz, askPx, askSz any
	}{
		{bidPx: int64(5), bidSz: uint32(3), askPx: nil, askSz: nil},
		{bidPx: int64(5), bidSz: uint32(3), askPx: int64(8), askSz: nil},
		{bidPx: int64(5), bidSz: uint32(3), askPx: int64(8), askSz: nil},
		{bidPx: int64(7), bidSz: uint32(3), askPx: int64(8), askSz: uint32(0)},
		{bidPx: int64(7), bidSz: uint32(3), askPx: int64(8), askSz: uint32(0)},
	}

	for i, w := range want {
		p := points[i]
		if p.Ts != int64(i+1) {
			t.Errorf("points[%d].Ts = %d, want %d", i, p.Ts, i+1)
		}
		if got := derefI64(p.BidPx); got != w.bidPx {
			t.Errorf("points[%d].BidPx = %v, want %v", i, got, w.bidPx)
		}
		if got := derefU32(p.BidSz); got != w.bidSz {
			t.Errorf("points[%d].BidSz = %v, want %v", i, got, w.bidSz)
		}
		if got := derefI64(p.AskPx); got != w.askPx {
			t.Errorf("points[%d].AskPx = %v, want %v", i, got, w.askPx)
		}
		if got := derefU32(p.AskSz); got != w.askSz {
			t.Errorf("points[%d].AskSz = %v, want %v", i, got, w.askSz)
		}
		if p.BidCt != nil || p.AskCt != nil {
			t.Errorf("points[%d] counts should stay absent", i)
		}
	}
}

func TestBBOSeries_InvalidRange(t *testing.T) {
	e, m := newTestEngine(t)
	register(t, m, "ABC")

	_, err := e.BBOSeries(context.Background(), "ABC", 10, 5)
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("BBOSeries() error = %v, want ErrInvalidRange", err)
	}
}

func TestTicks_IncludesTop(t *testing.T) {
	e, m := newTestEngine(t)
	id := register(t, m, "ABC")

	appendTick(t, m, tick(id, 10, 1, model.ActionAdd,
		model.DepthLevel{Depth: 0, BidPx: model.Int64(50)},
		model.DepthLevel{Depth: 1, BidPx: model.Int64(49)}))
	appendTick(t, m, tick(id, 20, 2, model.ActionClear))

	recs, err := e.Ticks(context.Background(), "ABC", 0, 100)
	if err != nil {
		t.Fatalf("Ticks() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(Ticks()) = %d, want 2", len(recs))
	}
	if recs[0].Top.BidPx == nil || *recs[0].Top.BidPx != 50 {
		t.Errorf("recs[0].Top.BidPx = %v, want 50", derefI64(recs[0].Top.BidPx))
	}
	if recs[1].Top.BidPx != nil {
		t.Errorf("recs[1] has no levels, Top.BidPx = %v", derefI64(recs[1].Top.BidPx))
	}
	if recs[1].Action != model.ActionClear {
		t.Errorf("recs[1].Action = %v, want %v", recs[1].Action, model.ActionClear)
	}
}

func TestTradesAndTBBO(t *testing.T) {
	e, m := newTestEngine(t)
	ctx := context.Background()
	id := register(t, m, "ABC")

	appendTick(t, m, tick(id, 1, 1, model.ActionAdd,
		model.DepthLevel{Depth: 0, BidPx: model.Int64(99), AskPx: model.Int64(101)}))
	appendTick(t, m, trade(id, 2, 2, 101, 4))
	appendTick(t, m, tick(id, 3, 3, model.ActionAdd,
		model.DepthLevel{Depth: 0, AskPx: model.Int64(102)}))
	appendTick(t, m, trade(id, 4, 4, 102, 6))

	trades, err := e.Trades(ctx, "ABC", 0, 10)
	if err != nil {
		t.Fatalf("Trades() error = %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("len(Trades()) = %d, want 2", len(trades))
	}
	if trades[0].Price != 101 || trades[1].Size != 6 {
		t.Errorf("trades = %+v", trades)
	}

	tbbo, err := e.TBBO(ctx, "ABC", 0, 10)
	if err != nil {
		t.Fatalf("TBBO() error = %v", err)
	}
	if len(tbbo) != 2 {
		t.Fatalf("len(TBBO()) = %d, want 2", len(tbbo))
	}
	if got := derefI64(tbbo[0].BBO.AskPx); got != int64(101) {
		t.Errorf("tbbo[0] ask = %v, want 101", got)
	}
	if got := derefI64(tbbo[1].BBO.AskPx); got != int64(102) {
		t.Errorf("tbbo[1] ask = %v, want 102", got)
	}
	if got := derefI64(tbbo[1].BBO.BidPx); got != int64(99) {
		t.Errorf("tbbo[1] bid = %v, want carried 99", got)
	}
}
