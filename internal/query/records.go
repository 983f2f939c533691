package query

import "github.com/rickgao/mbp-history/internal/model"

// Book is the reconstructed order book at a point in time.
type Book struct {
	InstrumentID int64
	Ticker       string
	TickID       int64 // Anchor tick
	TsEvent      int64
	Sequence     uint32
	Levels       []model.DepthLevel
}

// Top returns the best level of the book.
func (b Book) Top() (model.DepthLevel, bool) {
	for _, l := range b.Levels {
		if l.Depth == 0 {
			return l, true
		}
	}
	return model.DepthLevel{}, false
}

// BboPoint is the forward-filled top of book after one tick.
type BboPoint struct {
	Ts       int64
	Sequence uint32

	BidPx *int64
	BidSz *uint32
	BidCt *uint32

	AskPx *int64
	AskSz *uint32
	AskCt *uint32
}

// Mbp1Record is one tick with the depth-0 level it reported.
type Mbp1Record struct {
	InstrumentID int64
	TsEvent      int64
	TsRecv       int64
	TsInDelta    int32
	Price        int64
	Size         uint32
	Action       model.Action
	Side         model.Side
	Flags        uint8
	Sequence     uint32
	Top          model.DepthLevel
}

// TradeRecord is a tick whose action is a trade.
type TradeRecord struct {
	InstrumentID int64
	TsEvent      int64
	TsRecv       int64
	TsInDelta    int32
	Price        int64
	Size         uint32
	Side         model.Side
	Flags        uint8
	Sequence     uint32
}

// TBBORecord pairs a trade with the top of book in force when it printed.
type TBBORecord struct {
	Trade TradeRecord
	BBO   BboPoint
}

// OHLCVBar aggregates the trades of one interval. Ts is the interval start.
type OHLCVBar struct {
	InstrumentID int64
	Ts           int64
	Open         int64
	High         int64
	Low          int64
	Close        int64
	Volume       uint64
}

// BBOBar is the top of book at the end of one interval together with the
// last trade seen so far. Ts is the interval end; the interval is
// (Ts-interval, Ts].
type BBOBar struct {
	InstrumentID int64
	Ts           int64

	BidPx *int64
	BidSz *uint32
	BidCt *uint32
	AskPx *int64
	AskSz *uint32
	AskCt *uint32

	// Last trade, carried across intervals without trades.
	TradeTs *int64
	Price   *int64
	Size    *uint32
	Side    *model.Side

	Flags    uint8  // Last tick in the interval
	Sequence uint32 // Last tick in the interval
}

func toMbp1(t model.Tick, top model.DepthLevel) Mbp1Record {
	return Mbp1Record{
		InstrumentID: t.InstrumentID,
		TsEvent:      t.TsEvent,
		TsRecv:       t.TsRecv,
		TsInDelta:    t.TsInDelta,
		Price:        t.Price,
		Size:         t.Size,
		Action:       t.Action,
		Side:         t.Side,
		Flags:        t.Flags,
		Sequence:     t.Sequence,
		Top:          top,
	}
}

func toTrade(t model.Tick) TradeRecord {
	return TradeRecord{
		InstrumentID: t.InstrumentID,
		TsEvent:      t.TsEvent,
		TsRecv:       t.TsRecv,
		TsInDelta:    t.TsInDelta,
		Price:        t.Price,
		Size:         t.Size,
		Side:         t.Side,
		Flags:        t.Flags,
		Sequence:     t.Sequence,
	}
}
