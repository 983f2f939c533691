package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/mbp-history/internal/config"
	"github.com/rickgao/mbp-history/internal/database"
	"github.com/rickgao/mbp-history/internal/ingest"
	"github.com/rickgao/mbp-history/internal/model"
	"github.com/rickgao/mbp-history/internal/store"
	"github.com/rickgao/mbp-history/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/mbp.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to env file")
	inputPath := flag.String("input", "-", "JSON-lines event file, - for stdin")
	mode := flag.String("mode", "backfill", "backfill (load whole file, per-instrument parallel) or stream (batch writer)")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load env file", "path", *envPath, "error", err)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	})).With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting mbp-ingest", append(version.LogAttrs(), "mode", *mode, "input", *inputPath)...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.NewPostgres(pool, logger)

	input, closeInput, err := openInput(*inputPath)
	if err != nil {
		logger.Error("failed to open input", "error", err)
		os.Exit(1)
	}
	defer closeInput()

	decoder := ingest.NewDecoder(input)

	switch *mode {
	case "backfill":
		err = runBackfill(ctx, cfg, st, decoder, logger)
	case "stream":
		err = runStream(ctx, cfg, st, decoder, logger)
	default:
		logger.Error("unknown mode", "mode", *mode)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func runBackfill(ctx context.Context, cfg *config.Config, st store.Store, dec *ingest.Decoder, logger *slog.Logger) error {
	sources, events, err := ingest.ReadSources(dec, cfg.Ingest.BatchSize)
	if err != nil {
		return err
	}
	logger.Info("events loaded", "events", events, "instruments", len(sources))

	bf := ingest.NewBackfill(cfg.Backfill, st, st, logger)
	report, err := bf.Run(ctx, sources)

	totals := report.Totals()
	logger.Info("backfill report",
		"job_id", report.JobID.String(),
		"inserted", totals.Inserted,
		"duplicates", totals.Duplicates,
		"rejected", totals.Rejected,
	)
	return err
}

func runStream(ctx context.Context, cfg *config.Config, st store.Store, dec *ingest.Decoder, logger *slog.Logger) error {
	buf := ingest.NewBuffer[model.Tick](cfg.Ingest.BufferSize)
	w := ingest.NewWriter(ingest.WriterConfigFrom(cfg.Ingest), buf, st, logger)
	if err := w.Start(ctx); err != nil {
		return err
	}

	ids := make(map[string]int64)
	readErr := func() error {
		for ctx.Err() == nil {
			ev, err := dec.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			id, ok := ids[ev.Ticker]
			if !ok {
				id, err = st.GetOrCreate(ctx, model.Instrument{Ticker: ev.Ticker})
				if err != nil {
					return err
				}
				ids[ev.Ticker] = id
			}

			tick, err := ev.Tick(id)
			if err != nil {
				logger.Warn("skipping event", "line", dec.Line(), "error", err)
				continue
			}
			buf.Send(tick)
		}
		return nil
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	stopErr := w.Stop(shutdownCtx)
	if stopErr != nil {
		logger.Error("writer stop failed", "error", stopErr)
	}

	stats := w.Stats()
	logger.Info("stream report",
		"inserted", stats.Inserts,
		"duplicates", stats.Duplicates,
		"rejected", stats.Rejected,
		"dropped", stats.Dropped,
		"flushes", stats.Flushes,
	)
	if readErr != nil {
		return readErr
	}
	if stopErr != nil {
		return fmt.Errorf("stop writer: %w", stopErr)
	}
	if stats.Dropped > 0 {
		return fmt.Errorf("%d ticks dropped by failed flushes", stats.Dropped)
	}
	return nil
}
