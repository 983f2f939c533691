package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rickgao/mbp-history/internal/config"
	"github.com/rickgao/mbp-history/internal/model"
	"github.com/rickgao/mbp-history/internal/store"
)

// Source yields the historical events of one instrument.
type Source interface {
	// Instrument describes the instrument; it is registered if new.
	Instrument() model.Instrument

	// NextBatch returns the next events, or io.EOF once exhausted.
	// InstrumentID on the returned ticks is overwritten.
	NextBatch(ctx context.Context) ([]model.Tick, error)
}

// SliceSource serves preloaded ticks in fixed-size batches.
type SliceSource struct {
	inst      model.Instrument
	ticks     []model.Tick
	batchSize int
}

// NewSliceSource creates a Source over ticks.
func NewSliceSource(inst model.Instrument, ticks []model.Tick, batchSize int) *SliceSource {
	if batchSize < 1 {
		batchSize = config.DefaultBatchSize
	}
	return &SliceSource{inst: inst, ticks: ticks, batchSize: batchSize}
}

func (s *SliceSource) Instrument() model.Instrument {
	return s.inst
}

func (s *SliceSource) NextBatch(_ context.Context) ([]model.Tick, error) {
	if len(s.ticks) == 0 {
		return nil, io.EOF
	}
	n := min(s.batchSize, len(s.ticks))
	batch := s.ticks[:n]
	s.ticks = s.ticks[n:]
	return batch, nil
}

// InstrumentReport summarizes the load of one instrument.
type InstrumentReport struct {
	InstrumentID int64
	Batches      int
	Inserted     int
	Duplicates   int
	Rejected     int
}

// Report summarizes a backfill run.
type Report struct {
	JobID       uuid.UUID
	Instruments map[string]InstrumentReport
	Duration    time.Duration
}

// Totals sums the per-instrument counts.
func (r Report) Totals() InstrumentReport {
	var t InstrumentReport
	for _, ir := range r.Instruments {
		t.Batches += ir.Batches
		t.Inserted += ir.Inserted
		t.Duplicates += ir.Duplicates
		t.Rejected += ir.Rejected
	}
	return t
}

// Backfill loads many sources concurrently.
type Backfill struct {
	cfg      config.BackfillConfig
	registry store.Registry
	ledger   store.TickLedger
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewBackfill creates a Backfill. BatchesPerSecond <= 0 disables pacing.
func NewBackfill(cfg config.BackfillConfig, registry store.Registry, ledger store.TickLedger, logger *slog.Logger) *Backfill {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = config.DefaultBackfillConcurrency
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.BatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1)
	}

	return &Backfill{
		cfg:      cfg,
		registry: registry,
		ledger:   ledger,
		limiter:  limiter,
		logger:   logger,
	}
}

// Run loads every source. The first storage failure cancels the remaining
// loads; the report still covers what was committed before it.
func (b *Backfill) Run(ctx context.Context, sources []Source) (Report, error) {
	report := Report{
		JobID:       uuid.New(),
		Instruments: make(map[string]InstrumentReport, len(sources)),
	}
	logger := b.logger.With("job_id", report.JobID.String())
	start := time.Now()

	logger.Info("backfill started",
		"sources", len(sources),
		"concurrency", b.cfg.Concurrency,
		"batches_per_second", b.cfg.BatchesPerSecond,
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for _, src := range sources {
		g.Go(func() error {
			ticker := src.Instrument().Ticker
			ir, err := b.load(gctx, src, logger)

			mu.Lock()
			report.Instruments[ticker] = ir
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("backfill %s: %w", ticker, err)
			}
			return nil
		})
	}

	err := g.Wait()
	report.Duration = time.Since(start)

	totals := report.Totals()
	logger.Info("backfill finished",
		"instruments", len(report.Instruments),
		"batches", totals.Batches,
		"inserted", totals.Inserted,
		"duplicates", totals.Duplicates,
		"rejected", totals.Rejected,
		"duration", report.Duration,
		"error", err,
	)
	return report, err
}

// load drains one source into the ledger.
func (b *Backfill) load(ctx context.Context, src Source, logger *slog.Logger) (InstrumentReport, error) {
	var ir InstrumentReport

	inst := src.Instrument()
	id, err := b.registry.GetOrCreate(ctx, inst)
	if err != nil {
		return ir, fmt.Errorf("register: %w", err)
	}
	ir.InstrumentID = id

	for {
		batch, err := src.NextBatch(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ir, fmt.Errorf("read source: %w", err)
		}
		if len(batch) == 0 {
			continue
		}

		if err := b.limiter.Wait(ctx); err != nil {
			return ir, err
		}

		for i := range batch {
			batch[i].InstrumentID = id
		}

		out, err := b.ledger.AppendBatch(ctx, batch)
		if err != nil {
			return ir, err
		}

		ir.Batches++
		ir.Inserted += out.Inserted
		ir.Duplicates += out.Duplicates
		ir.Rejected += len(out.Rejected)

		for _, rej := range out.Rejected {
			logger.Warn("tick rejected",
				"ticker", inst.Ticker,
				"key", rej.Key.String(),
				"error", rej.Err,
			)
		}
	}

	logger.Debug("instrument loaded",
		"ticker", inst.Ticker,
		"instrument_id", id,
		"batches", ir.Batches,
		"inserted", ir.Inserted,
	)
	return ir, nil
}
