package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/mbp-history/internal/config"
	"github.com/rickgao/mbp-history/internal/database"
	"github.com/rickgao/mbp-history/internal/query"
	"github.com/rickgao/mbp-history/internal/store"
	"github.com/rickgao/mbp-history/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/mbp.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to env file")
	op := flag.String("op", "retrieve", "retrieve, book, bbo or instruments")
	schema := flag.String("schema", string(query.SchemaMbp1), "retrieval schema (retrieve only)")
	symbols := flag.String("symbols", "", "comma-separated tickers")
	startFlag := flag.String("start", "", "start time, RFC 3339 or ns since epoch")
	endFlag := flag.String("end", "", "end time, RFC 3339 or ns since epoch (book: the query time)")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load env file", "path", *envPath, "error", err)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Records go to stdout; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	})).With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Debug("starting mbp-query", version.LogAttrs()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Query.Timeout)
	defer cancel()

	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.NewPostgres(pool, logger)
	engine := query.NewEngine(st, st, st, logger)

	out, err := run(ctx, engine, st, cfg, *op, *schema, splitSymbols(*symbols), *startFlag, *endFlag)
	if err != nil {
		logger.Error("query failed", "op", *op, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("failed to write output", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, engine *query.Engine, registry store.Registry, cfg *config.Config, op, schema string, symbols []string, startFlag, endFlag string) (any, error) {
	if op == "instruments" {
		return registry.List(ctx, true)
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("-symbols is required for %s", op)
	}
	end, err := parseTime(endFlag)
	if err != nil {
		return nil, fmt.Errorf("-end: %w", err)
	}

	switch op {
	case "book":
		book, ok, err := engine.BookAt(ctx, symbols[0], end)
		if err != nil || !ok {
			return nil, err
		}
		return book, nil
	case "bbo":
		start, err := parseTime(startFlag)
		if err != nil {
			return nil, fmt.Errorf("-start: %w", err)
		}
		return engine.BBOSeries(ctx, symbols[0], start, end)
	case "retrieve":
		start, err := parseTime(startFlag)
		if err != nil {
			return nil, fmt.Errorf("-start: %w", err)
		}
		s, err := query.ParseSchema(schema)
		if err != nil {
			return nil, err
		}
		params := query.RetrieveParams{Symbols: symbols, Start: start, End: end, Schema: s}
		return engine.Retrieve(ctx, params, cfg.Query.BatchWindow.Nanoseconds())
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseTime accepts nanoseconds since the epoch or an RFC 3339 timestamp.
func parseTime(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("time is required")
	}
	if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ns, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UnixNano(), nil
}
