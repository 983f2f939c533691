package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/mbp-history/internal/config"
	"github.com/rickgao/mbp-history/internal/model"
	"github.com/rickgao/mbp-history/internal/store"
)

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     config.DefaultBatchSize,
		FlushInterval: config.DefaultFlushInterval,
	}
}

// WriterConfigFrom converts the ingest section of the process config.
func WriterConfigFrom(cfg config.IngestConfig) WriterConfig {
	return WriterConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts    int64
	Duplicates int64
	Rejected   int64 // Events refused by invariant or constraint checks
	Errors     int64 // Failed flushes
	Dropped    int64 // Events in failed flushes
	Flushes    int64
}

// Writer consumes ticks from a Buffer and appends them in batches.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger

	input  *Buffer[model.Tick]
	ledger store.TickLedger

	batch       []model.Tick
	batchMu     sync.Mutex
	flushMu     sync.Mutex
	flushTicker *time.Ticker

	// ctx ends the loops. storeCtx outlives it so a flush in progress
	// when Stop is called still completes.
	ctx         context.Context
	cancel      context.CancelFunc
	storeCtx    context.Context
	storeCancel context.CancelFunc
	wg          sync.WaitGroup

	metrics   WriterMetrics
	metricsMu sync.Mutex
}

// NewWriter creates a Writer.
func NewWriter(cfg WriterConfig, input *Buffer[model.Tick], ledger store.TickLedger, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = config.DefaultFlushInterval
	}
	return &Writer{
		cfg:    cfg,
		input:  input,
		ledger: ledger,
		logger: logger,
		batch:  make([]model.Tick, 0, cfg.BatchSize),
	}
}

// Start begins consuming ticks.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.storeCtx, w.storeCancel = context.WithCancel(context.WithoutCancel(ctx))
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("tick writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop stops the loops, waits for an in-flight flush, then writes everything
// still batched or queued using ctx. When ctx expires first the in-flight
// flush is aborted.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping tick writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.storeCancel != nil {
		defer w.storeCancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("tick writer stop timed out")
		return ctx.Err()
	}

	for {
		items := w.input.DrainTo(w.cfg.BatchSize)
		if len(items) == 0 {
			break
		}
		w.add(ctx, items)
	}
	w.flush(ctx)

	w.logger.Info("tick writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

// consumeLoop moves ticks from the input buffer into the pending batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		items := w.input.DrainTo(w.cfg.BatchSize)
		if len(items) == 0 {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}
		w.add(w.storeCtx, items)

		if w.ctx.Err() != nil {
			return
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.storeCtx)
		}
	}
}

// add appends items to the batch and flushes when it is full.
func (w *Writer) add(ctx context.Context, items []model.Tick) {
	w.batchMu.Lock()
	w.batch = append(w.batch, items...)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(ctx)
	}
}

// flush writes the pending batch in one AppendBatch call. With ctx done the
// batch is kept for the final flush in Stop.
func (w *Writer) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	w.batchMu.Lock()
	batch := w.batch
	w.batch = make([]model.Tick, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if len(batch) == 0 {
		return
	}

	start := time.Now()
	out, err := w.ledger.AppendBatch(ctx, batch)
	if err != nil {
		w.logger.Error("tick batch append failed", "error", err, "count", len(batch))
		w.metricsMu.Lock()
		w.metrics.Errors++
		w.metrics.Dropped += int64(len(batch))
		w.metricsMu.Unlock()
		return
	}

	for _, rej := range out.Rejected {
		w.logger.Warn("tick rejected",
			"instrument_id", rej.InstrumentID,
			"key", rej.Key.String(),
			"error", rej.Err,
		)
	}

	w.metricsMu.Lock()
	w.metrics.Inserts += int64(out.Inserted)
	w.metrics.Duplicates += int64(out.Duplicates)
	w.metrics.Rejected += int64(len(out.Rejected))
	w.metrics.Flushes++
	w.metricsMu.Unlock()

	w.logger.Debug("flushed ticks",
		"inserted", out.Inserted,
		"duplicates", out.Duplicates,
		"rejected", len(out.Rejected),
		"duration", time.Since(start),
	)
}
