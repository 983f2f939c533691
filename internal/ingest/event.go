package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rickgao/mbp-history/internal/model"
)

// Event is the JSON-lines wire form of one market-by-price event. Prices are
// decimal strings; absent level fields are omitted or null.
type Event struct {
	Ticker        string       `json:"ticker"`
	TsEvent       int64        `json:"ts_event"`
	TsRecv        int64        `json:"ts_recv"`
	TsInDelta     int32        `json:"ts_in_delta"`
	Price         string       `json:"price"`
	Size          uint32       `json:"size"`
	Action        model.Action `json:"action"`
	Side          model.Side   `json:"side"`
	Flags         uint8        `json:"flags"`
	Sequence      uint32       `json:"sequence"`
	Discriminator uint32       `json:"discriminator"`
	Levels        []EventLevel `json:"levels"`
}

// EventLevel is one book level of an Event.
type EventLevel struct {
	Depth int32   `json:"depth"`
	BidPx *string `json:"bid_px"`
	BidSz *uint32 `json:"bid_sz"`
	BidCt *uint32 `json:"bid_ct"`
	AskPx *string `json:"ask_px"`
	AskSz *uint32 `json:"ask_sz"`
	AskCt *uint32 `json:"ask_ct"`
}

// Tick converts the event for the given instrument.
func (e Event) Tick(instrumentID int64) (model.Tick, error) {
	price, err := model.ParsePrice(e.Price)
	if err != nil {
		return model.Tick{}, fmt.Errorf("price: %w", err)
	}

	levels := make([]model.DepthLevel, 0, len(e.Levels))
	for _, l := range e.Levels {
		bid, err := parseOptionalPrice(l.BidPx)
		if err != nil {
			return model.Tick{}, fmt.Errorf("level %d bid_px: %w", l.Depth, err)
		}
		ask, err := parseOptionalPrice(l.AskPx)
		if err != nil {
			return model.Tick{}, fmt.Errorf("level %d ask_px: %w", l.Depth, err)
		}
		levels = append(levels, model.DepthLevel{
			Depth: l.Depth,
			BidPx: bid,
			BidSz: l.BidSz,
			BidCt: l.BidCt,
			AskPx: ask,
			AskSz: l.AskSz,
			AskCt: l.AskCt,
		})
	}

	return model.Tick{
		InstrumentID:  instrumentID,
		TsEvent:       e.TsEvent,
		TsRecv:        e.TsRecv,
		TsInDelta:     e.TsInDelta,
		Price:         price,
		Size:          e.Size,
		Action:        e.Action,
		Side:          e.Side,
		Flags:         e.Flags,
		Sequence:      e.Sequence,
		Discriminator: e.Discriminator,
		Levels:        levels,
	}, nil
}

func parseOptionalPrice(s *string) (*int64, error) {
	if s == nil {
		return nil, nil
	}
	v, err := model.ParsePrice(*s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Decoder reads Events from JSON lines. Blank lines are skipped.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Decoder{scanner: s}
}

// Next returns the next event, or io.EOF at end of input.
func (d *Decoder) Next() (Event, error) {
	for d.scanner.Scan() {
		d.line++
		raw := d.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return Event{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		if ev.Ticker == "" {
			return Event{}, fmt.Errorf("line %d: missing ticker", d.line)
		}
		return ev, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("line %d: %w", d.line+1, err)
	}
	return Event{}, io.EOF
}

// Line returns the number of the last line read.
func (d *Decoder) Line() int {
	return d.line
}

// ReadSources decodes all events and groups them into one SliceSource per
// ticker, in first-seen order. It returns the sources and the event count.
func ReadSources(d *Decoder, batchSize int) ([]Source, int, error) {
	var (
		order  []string
		ticks  = make(map[string][]model.Tick)
		events int
	)
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, events, err
		}

		tick, err := ev.Tick(0)
		if err != nil {
			return nil, events, fmt.Errorf("line %d: %w", d.Line(), err)
		}
		if _, seen := ticks[ev.Ticker]; !seen {
			order = append(order, ev.Ticker)
		}
		ticks[ev.Ticker] = append(ticks[ev.Ticker], tick)
		events++
	}

	sources := make([]Source, 0, len(order))
	for _, ticker := range order {
		sources = append(sources, NewSliceSource(model.Instrument{Ticker: ticker}, ticks[ticker], batchSize))
	}
	return sources, events, nil
}
