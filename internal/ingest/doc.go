// Package ingest feeds market-by-price events into the tick ledger.
//
// Writer batches a live stream from a Buffer and flushes on size or
// interval. Backfill loads historical sources for many instruments in
// parallel with bounded concurrency and optional pacing.
//
// Neither retries a failed write. A batch that fails with
// store.ErrUnavailable is reported to the caller, who owns backoff; the
// natural-key dedup makes a replay safe.
package ingest
