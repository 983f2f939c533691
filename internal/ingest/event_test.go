package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rickgao/mbp-history/internal/model"
)

const sampleEvents = `{"ticker":"AAPL","ts_event":1704186000000000000,"ts_recv":1704186000000000100,"ts_in_delta":17493,"price":"6.77","size":1,"action":"A","side":"B","flags":130,"sequence":157862,"levels":[{"depth":0,"bid_px":"1.00","bid_sz":1,"bid_ct":10,"ask_px":"1.01","ask_sz":1,"ask_ct":20}]}

{"ticker":"MSFT","ts_event":1704186000000000500,"ts_recv":1704186000000000600,"price":"370.1","size":5,"action":"T","side":"A","sequence":9,"levels":[{"depth":0,"ask_px":"370.10"}]}
`

func TestDecoder(t *testing.T) {
	d := NewDecoder(strings.NewReader(sampleEvents))

	first, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if first.Ticker != "AAPL" || first.Action != model.ActionAdd || first.Side != model.SideBid {
		t.Errorf("first = %+v", first)
	}

	second, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if second.Ticker != "MSFT" || second.Action != model.ActionTrade {
		t.Errorf("second = %+v", second)
	}
	if d.Line() != 3 {
		t.Errorf("Line() = %d, want 3", d.Line())
	}

	if _, err := d.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end error = %v, want io.EOF", err)
	}
}

func TestDecoder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "bad json", input: "{not json}\n"},
		{name: "missing ticker", input: `{"ts_event":1,"price":"1"}` + "\n"},
		{name: "bad action", input: `{"ticker":"A","action":"X","price":"1"}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(strings.NewReader(tt.input)).Next()
			if err == nil || errors.Is(err, io.EOF) {
				t.Errorf("Next() error = %v, want decode error", err)
			}
			if err != nil && !strings.HasPrefix(err.Error(), "line 1:") {
				t.Errorf("error %q should name the line", err)
			}
		})
	}
}

func TestEvent_Tick(t *testing.T) {
	ev, err := NewDecoder(strings.NewReader(sampleEvents)).Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	tick, err := ev.Tick(42)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if tick.InstrumentID != 42 {
		t.Errorf("InstrumentID = %d, want 42", tick.InstrumentID)
	}
	if tick.Price != 6_770_000_000 {
		t.Errorf("Price = %d, want 6770000000", tick.Price)
	}
	if tick.Flags != 130 || tick.TsInDelta != 17493 || tick.Sequence != 157862 {
		t.Errorf("tick = %+v", tick)
	}
	if len(tick.Levels) != 1 {
		t.Fatalf("len(Levels) = %d, want 1", len(tick.Levels))
	}
	l := tick.Levels[0]
	if *l.BidPx != 1_000_000_000 || *l.AskPx != 1_010_000_000 || *l.AskCt != 20 {
		t.Errorf("level = bid %d ask %d ask_ct %d", *l.BidPx, *l.AskPx, *l.AskCt)
	}
}

func TestEvent_TickAbsentFields(t *testing.T) {
	d := NewDecoder(strings.NewReader(sampleEvents))
	d.Next()
	ev, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	tick, err := ev.Tick(1)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	l := tick.Levels[0]
	if l.BidPx != nil || l.BidSz != nil || l.AskSz != nil {
		t.Error("omitted level fields should be absent")
	}
	if l.AskPx == nil || *l.AskPx != 370_100_000_000 {
		t.Errorf("AskPx = %v, want 370100000000", l.AskPx)
	}
}

func TestEvent_TickBadPrice(t *testing.T) {
	bad := "1.0000000001"
	ev := Event{Ticker: "A", Price: "1", Levels: []EventLevel{{Depth: 0, BidPx: &bad}}}
	if _, err := ev.Tick(1); err == nil {
		t.Error("Tick() should reject a price with more than nine fractional digits")
	}

	ev = Event{Ticker: "A", Price: "abc"}
	if _, err := ev.Tick(1); err == nil {
		t.Error("Tick() should reject an unparsable price")
	}
}

func TestReadSources(t *testing.T) {
	input := sampleEvents + `{"ticker":"AAPL","ts_event":1704186000000000900,"price":"6.78","size":2,"action":"C","side":"B"}` + "\n"

	sources, events, err := ReadSources(NewDecoder(strings.NewReader(input)), 10)
	if err != nil {
		t.Fatalf("ReadSources() error = %v", err)
	}
	if events != 3 {
		t.Errorf("events = %d, want 3", events)
	}
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if got := sources[0].Instrument().Ticker; got != "AAPL" {
		t.Errorf("sources[0] = %q, want AAPL first", got)
	}

	batch, err := sources[0].NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch() error = %v", err)
	}
	if len(batch) != 2 {
		t.Errorf("AAPL batch = %d ticks, want 2", len(batch))
	}
}

func TestReadSources_BadPrice(t *testing.T) {
	input := `{"ticker":"A","price":"x","action":"A","side":"B"}` + "\n"
	if _, _, err := ReadSources(NewDecoder(strings.NewReader(input)), 10); err == nil {
		t.Error("ReadSources() should fail on a bad price")
	}
}
