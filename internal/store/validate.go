package store

import (
	"fmt"
	"sort"

	"github.com/rickgao/mbp-history/internal/model"
)

// prepareTick validates t, orders its levels by depth and stamps the
// order-book hash. It never touches storage.
func prepareTick(t *model.Tick) error {
	if t.InstrumentID <= 0 {
		return fmt.Errorf("%w: instrument id %d", ErrInvariantViolation, t.InstrumentID)
	}
	if !t.Action.Valid() {
		return fmt.Errorf("%w: unknown action %d", ErrInvariantViolation, t.Action)
	}
	if !t.Side.Valid() {
		return fmt.Errorf("%w: unknown side %d", ErrInvariantViolation, t.Side)
	}

	seen := make(map[int32]struct{}, len(t.Levels))
	for _, l := range t.Levels {
		if l.Depth < 0 {
			return fmt.Errorf("%w: negative depth %d", ErrInvariantViolation, l.Depth)
		}
		if _, dup := seen[l.Depth]; dup {
			return fmt.Errorf("%w: depth %d repeated within tick", ErrInvariantViolation, l.Depth)
		}
		seen[l.Depth] = struct{}{}
	}

	levels := make([]model.DepthLevel, len(t.Levels))
	copy(levels, t.Levels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Depth < levels[j].Depth })
	t.Levels = levels
	t.OrderBookHash = model.OrderBookHash(levels)
	return nil
}

// prepareBatch runs prepareTick over ticks, returning the valid ones and an
// outcome holding the rejections.
func prepareBatch(ticks []model.Tick) (BatchOutcome, []model.Tick) {
	var out BatchOutcome
	valid := make([]model.Tick, 0, len(ticks))
	for _, t := range ticks {
		if err := prepareTick(&t); err != nil {
			out.Rejected = append(out.Rejected, newIngestError(t, err))
			continue
		}
		valid = append(valid, t)
	}
	return out, valid
}

// sortByKey orders ticks by their natural key. Equal keys keep their input
// order.
func sortByKey(ticks []model.Tick) {
	sort.SliceStable(ticks, func(i, j int) bool {
		return keyLess(ticks[i].Key(), ticks[j].Key())
	})
}

func keyLess(a, b model.NaturalKey) bool {
	switch {
	case a.InstrumentID != b.InstrumentID:
		return a.InstrumentID < b.InstrumentID
	case a.TsEvent != b.TsEvent:
		return a.TsEvent < b.TsEvent
	case a.Price != b.Price:
		return a.Price < b.Price
	case a.Size != b.Size:
		return a.Size < b.Size
	case a.Flags != b.Flags:
		return a.Flags < b.Flags
	case a.Sequence != b.Sequence:
		return a.Sequence < b.Sequence
	case a.OrderBookHash != b.OrderBookHash:
		return a.OrderBookHash < b.OrderBookHash
	case a.TsRecv != b.TsRecv:
		return a.TsRecv < b.TsRecv
	case a.Action != b.Action:
		return a.Action < b.Action
	case a.Side != b.Side:
		return a.Side < b.Side
	}
	return a.Discriminator < b.Discriminator
}

// span tracks the ts_event bounds of the ticks inserted for one instrument.
type span struct {
	min, max int64
}

func (s *span) include(ts int64) {
	if ts < s.min {
		s.min = ts
	}
	if ts > s.max {
		s.max = ts
	}
}

func widenSpans(spans map[int64]*span, instrumentID, ts int64) {
	if s, ok := spans[instrumentID]; ok {
		s.include(ts)
		return
	}
	spans[instrumentID] = &span{min: ts, max: ts}
}
