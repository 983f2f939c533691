package query

import (
	"context"
	"fmt"

	"github.com/rickgao/mbp-history/internal/fill"
	"github.com/rickgao/mbp-history/internal/model"
)

// OHLCV aggregates the trades in [from, to] into bars of the given interval
// (ns). A bar covers [Ts, Ts+interval). Intervals without trades produce no
// bar.
func (e *Engine) OHLCV(ctx context.Context, ticker string, from, to, interval int64) ([]OHLCVBar, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval %d", ErrInvalidRange, interval)
	}
	trades, err := e.Trades(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	return aggregateOHLCV(trades, interval), nil
}

func aggregateOHLCV(trades []TradeRecord, interval int64) []OHLCVBar {
	var bars []OHLCVBar
	for _, t := range trades {
		bucket := alignDown(t.TsEvent, interval)
		n := len(bars)
		if n == 0 || bars[n-1].Ts != bucket {
			bars = append(bars, OHLCVBar{
				InstrumentID: t.InstrumentID,
				Ts:           bucket,
				Open:         t.Price,
				High:         t.Price,
				Low:          t.Price,
				Close:        t.Price,
				Volume:       uint64(t.Size),
			})
			continue
		}

		b := &bars[n-1]
		b.High = max(b.High, t.Price)
		b.Low = min(b.Low, t.Price)
		b.Close = t.Price
		b.Volume += uint64(t.Size)
	}
	return bars
}

// BBOBars returns, for each interval holding at least one tick in [from, to],
// the forward-filled top of book after the interval's last tick and the last
// trade seen up to that point. Bar timestamps are interval ends.
func (e *Engine) BBOBars(ctx context.Context, ticker string, from, to, interval int64) ([]BBOBar, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval %d", ErrInvalidRange, interval)
	}
	ticks, tops, err := e.load(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}

	var (
		book    bboFill
		tradeTs fill.Last[int64]
		price   fill.Last[int64]
		size    fill.Last[uint32]
		side    fill.Last[model.Side]
		bars    []BBOBar
	)
	for _, t := range ticks {
		top, ok := tops[t.ID]
		pt := book.step(t, top, ok)

		if t.Action == model.ActionTrade {
			tradeTs.Step(&t.TsEvent)
			price.Step(&t.Price)
			size.Step(&t.Size)
			side.Step(&t.Side)
		}

		end := alignDown(t.TsEvent-1, interval) + interval
		if n := len(bars); n == 0 || bars[n-1].Ts != end {
			bars = append(bars, BBOBar{InstrumentID: t.InstrumentID, Ts: end})
		}

		b := &bars[len(bars)-1]
		b.BidPx, b.BidSz, b.BidCt = pt.BidPx, pt.BidSz, pt.BidCt
		b.AskPx, b.AskSz, b.AskCt = pt.AskPx, pt.AskSz, pt.AskCt
		b.TradeTs = tradeTs.Ptr()
		b.Price = price.Ptr()
		b.Size = size.Ptr()
		b.Side = side.Ptr()
		b.Flags = t.Flags
		b.Sequence = t.Sequence
	}
	return bars, nil
}

// alignDown rounds ts down to a multiple of interval.
func alignDown(ts, interval int64) int64 {
	q := ts / interval
	if ts%interval != 0 && ts < 0 {
		q--
	}
	return q * interval
}
