package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/mbp-history/internal/model"
)

// Memory is an in-process Store. A single lock serializes writers, which
// gives every AppendBatch the same all-or-nothing registry update as the
// Postgres transaction.
type Memory struct {
	mu sync.RWMutex

	nextInstrumentID int64
	nextTickID       int64

	instruments map[int64]*model.Instrument
	byTicker    map[string]int64
	// available marks instruments whose bounds have been set, since 0 is a
	// valid timestamp.
	available map[int64]bool

	// ticks holds committed ticks with their levels, indexed by id.
	ticks        map[int64]*model.Tick
	byKey        map[model.NaturalKey]int64
	byInstrument map[int64][]int64

	logger *slog.Logger
}

// NewMemory creates an empty in-memory store.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		instruments:  make(map[int64]*model.Instrument),
		byTicker:     make(map[string]int64),
		available:    make(map[int64]bool),
		ticks:        make(map[int64]*model.Tick),
		byKey:        make(map[model.NaturalKey]int64),
		byInstrument: make(map[int64][]int64),
		logger:       logger,
	}
}

// Resolve returns the id of a known ticker, or ErrNotFound.
func (m *Memory) Resolve(_ context.Context, ticker string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTicker[ticker]
	if !ok {
		return 0, fmt.Errorf("resolve %q: %w", ticker, ErrNotFound)
	}
	return id, nil
}

// GetOrCreate registers inst.Ticker if it is new and returns its id.
func (m *Memory) GetOrCreate(_ context.Context, inst model.Instrument) (int64, error) {
	if inst.Ticker == "" {
		return 0, fmt.Errorf("register instrument: %w: empty ticker", ErrInvariantViolation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byTicker[inst.Ticker]; ok {
		return id, nil
	}

	m.nextInstrumentID++
	created := model.Instrument{
		ID:      m.nextInstrumentID,
		Ticker:  inst.Ticker,
		Name:    inst.Name,
		Vendor:  inst.Vendor,
		Stype:   inst.Stype,
		Dataset: inst.Dataset,
		Active:  true,
	}
	m.instruments[created.ID] = &created
	m.byTicker[created.Ticker] = created.ID

	m.logger.Info("instrument registered", "ticker", created.Ticker, "id", created.ID)
	return created.ID, nil
}

// Get returns an instrument by id.
func (m *Memory) Get(_ context.Context, id int64) (model.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instruments[id]
	if !ok {
		return model.Instrument{}, fmt.Errorf("get instrument %d: %w", id, ErrNotFound)
	}
	return *inst, nil
}

// List returns instruments ordered by ticker.
func (m *Memory) List(_ context.Context, activeOnly bool) ([]model.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.Instrument, 0, len(m.instruments))
	for _, inst := range m.instruments {
		if activeOnly && !inst.Active {
			continue
		}
		result = append(result, *inst)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ticker < result[j].Ticker })
	return result, nil
}

// UpdateAvailability widens the availability bounds to include ts.
func (m *Memory) UpdateAvailability(_ context.Context, id, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.widenLocked(id, ts, ts); err != nil {
		return fmt.Errorf("update availability %d: %w", id, err)
	}
	return nil
}

// Activate marks an instrument active.
func (m *Memory) Activate(_ context.Context, id int64) error {
	return m.setActive(id, true)
}

// Deactivate soft-deletes an instrument. Its history is kept.
func (m *Memory) Deactivate(_ context.Context, id int64) error {
	return m.setActive(id, false)
}

func (m *Memory) setActive(id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instruments[id]
	if !ok {
		return fmt.Errorf("set active %d: %w", id, ErrNotFound)
	}
	inst.Active = active
	return nil
}

// Delete removes an instrument with all of its ticks and their levels.
func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instruments[id]
	if !ok {
		return fmt.Errorf("delete instrument %d: %w", id, ErrNotFound)
	}

	tickIDs := m.byInstrument[id]
	for _, tickID := range tickIDs {
		t := m.ticks[tickID]
		delete(m.byKey, t.Key())
		delete(m.ticks, tickID)
	}
	delete(m.byInstrument, id)
	delete(m.byTicker, inst.Ticker)
	delete(m.available, id)
	delete(m.instruments, id)

	m.logger.Warn("instrument deleted", "id", id, "ticks", len(tickIDs))
	return nil
}

// widenLocked widens bounds; caller must hold the write lock.
func (m *Memory) widenLocked(id, minTs, maxTs int64) error {
	inst, ok := m.instruments[id]
	if !ok {
		return ErrNotFound
	}
	fresh := !m.available[id]
	m.available[id] = true
	if fresh || minTs < inst.FirstAvailable {
		inst.FirstAvailable = minTs
	}
	if fresh || maxTs > inst.LastAvailable {
		inst.LastAvailable = maxTs
	}
	return nil
}

// Append stores one tick with its levels.
func (m *Memory) Append(ctx context.Context, tick model.Tick) (Outcome, error) {
	return appendOne(ctx, m, tick)
}

// AppendBatch stores ticks atomically with their availability updates.
func (m *Memory) AppendBatch(ctx context.Context, ticks []model.Tick) (BatchOutcome, error) {
	if err := ctx.Err(); err != nil {
		return BatchOutcome{}, err
	}

	var out BatchOutcome

	m.mu.Lock()
	defer m.mu.Unlock()

	spans := make(map[int64]*span)
	for _, t := range ticks {
		if err := prepareTick(&t); err != nil {
			out.Rejected = append(out.Rejected, newIngestError(t, err))
			continue
		}
		if _, ok := m.instruments[t.InstrumentID]; !ok {
			err := fmt.Errorf("%w: instrument %d does not exist", ErrConstraintViolation, t.InstrumentID)
			out.Rejected = append(out.Rejected, newIngestError(t, err))
			continue
		}

		key := t.Key()
		if _, dup := m.byKey[key]; dup {
			out.Duplicates++
			continue
		}

		m.nextTickID++
		t.ID = m.nextTickID
		t.Levels = copyLevels(t.Levels)
		m.ticks[t.ID] = &t
		m.byKey[key] = t.ID
		m.byInstrument[t.InstrumentID] = append(m.byInstrument[t.InstrumentID], t.ID)

		out.Inserted++
		widenSpans(spans, t.InstrumentID, t.TsEvent)
	}

	for id, s := range spans {
		// Instruments were checked above and the lock is still held.
		_ = m.widenLocked(id, s.min, s.max)
	}
	return out, nil
}

// Range returns ticks with from <= ts_event <= to ordered by (ts_event, sequence).
func (m *Memory) Range(_ context.Context, instrumentID, from, to int64) ([]model.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []model.Tick
	for _, id := range m.byInstrument[instrumentID] {
		t := m.ticks[id]
		if t.TsEvent < from || t.TsEvent > to {
			continue
		}
		result = append(result, withoutLevels(t))
	}
	sortTicks(result)
	return result, nil
}

// LatestBefore returns the most recent tick with ts_event <= ts.
func (m *Memory) LatestBefore(_ context.Context, instrumentID, ts int64) (model.Tick, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *model.Tick
	for _, id := range m.byInstrument[instrumentID] {
		t := m.ticks[id]
		if t.TsEvent > ts {
			continue
		}
		if best == nil || tickLess(best, t) {
			best = t
		}
	}
	if best == nil {
		return model.Tick{}, false, nil
	}
	return withoutLevels(best), true, nil
}

// Count returns the number of ticks stored for an instrument.
func (m *Memory) Count(_ context.Context, instrumentID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.byInstrument[instrumentID])), nil
}

// LevelsFor returns a tick's levels ordered by depth.
func (m *Memory) LevelsFor(_ context.Context, tickID int64) ([]model.DepthLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.ticks[tickID]
	if !ok {
		return nil, nil
	}
	return copyLevels(t.Levels), nil
}

// TopLevels returns the depth-0 level of each tick that has one.
func (m *Memory) TopLevels(_ context.Context, tickIDs []int64) (map[int64]model.DepthLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[int64]model.DepthLevel, len(tickIDs))
	for _, id := range tickIDs {
		t, ok := m.ticks[id]
		if !ok {
			continue
		}
		if top, ok := t.Top(); ok {
			result[id] = copyLevels([]model.DepthLevel{top})[0]
		}
	}
	return result, nil
}

// LevelCount returns the number of depth levels stored across all ticks.
func (m *Memory) LevelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, t := range m.ticks {
		n += len(t.Levels)
	}
	return n
}

func withoutLevels(t *model.Tick) model.Tick {
	c := *t
	c.Levels = nil
	return c
}

// tickLess orders ticks by (ts_event, sequence, id).
func tickLess(a, b *model.Tick) bool {
	if a.TsEvent != b.TsEvent {
		return a.TsEvent < b.TsEvent
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.ID < b.ID
}

func sortTicks(ticks []model.Tick) {
	sort.Slice(ticks, func(i, j int) bool { return tickLess(&ticks[i], &ticks[j]) })
}

// copyLevels deep-copies levels so stored rows stay immutable.
func copyLevels(levels []model.DepthLevel) []model.DepthLevel {
	if levels == nil {
		return nil
	}
	out := make([]model.DepthLevel, len(levels))
	for i, l := range levels {
		out[i] = model.DepthLevel{
			Depth: l.Depth,
			BidPx: copyPtr(l.BidPx),
			BidSz: copyPtr(l.BidSz),
			BidCt: copyPtr(l.BidCt),
			AskPx: copyPtr(l.AskPx),
			AskSz: copyPtr(l.AskSz),
			AskCt: copyPtr(l.AskCt),
		}
	}
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
