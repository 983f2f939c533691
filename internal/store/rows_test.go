package store

import (
	"testing"

	"github.com/rickgao/mbp-history/internal/model"
)

func TestTickArgs(t *testing.T) {
	tick := testTick(7, 1000, 42)
	tick.Discriminator = 3
	tick.OrderBookHash = "h"

	args := tickArgs(tick)
	if len(args) != 12 {
		t.Fatalf("len(tickArgs) = %d, want 12", len(args))
	}
	if args[6] != int32('A') {
		t.Errorf("action arg = %v, want %d", args[6], 'A')
	}
	if args[7] != int32('B') {
		t.Errorf("side arg = %v, want %d", args[7], 'B')
	}
	if args[9] != int64(42) {
		t.Errorf("sequence arg = %v, want 42", args[9])
	}
	if args[11] != "h" {
		t.Errorf("hash arg = %v, want h", args[11])
	}
}

func TestLevelArgs_KeepsNulls(t *testing.T) {
	l := model.DepthLevel{Depth: 2, BidPx: model.Int64(99), BidSz: model.Uint32(4)}
	args := levelArgs(5, l)

	if args[0] != int64(5) || args[1] != int32(2) {
		t.Errorf("id/depth args = %v, %v", args[0], args[1])
	}
	if p, ok := args[3].(*int64); !ok || p == nil || *p != 4 {
		t.Errorf("bid_sz arg = %v, want 4", args[3])
	}
	if p, ok := args[4].(*int64); !ok || p != nil {
		t.Errorf("bid_ct arg = %v, want nil *int64", args[4])
	}
	if p, ok := args[5].(*int64); !ok || p != nil {
		t.Errorf("ask_px arg = %v, want nil *int64", args[5])
	}
}

func TestLevelRow_ToModel(t *testing.T) {
	sz := int64(4_000_000_000)
	r := levelRow{depth: 0, bidPx: model.Int64(100), bidSz: &sz}
	l := r.toModel()

	if *l.BidSz != 4_000_000_000 {
		t.Errorf("BidSz = %d, want 4000000000", *l.BidSz)
	}
	if l.AskPx != nil || l.AskSz != nil || l.BidCt != nil {
		t.Error("absent columns should stay nil")
	}
}
