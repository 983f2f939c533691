// Package store implements the Instrument Registry, Tick Ledger and Depth Ledger.
//
// Two implementations share one contract:
//   - Postgres: the production store over the instrument, mbp and bid_ask relations
//   - Memory: an in-process store with identical dedup, cascade and
//     availability semantics, used by tests and dry runs
//
// Ticks are deduplicated by their natural key with a single conflict-aware
// write. A duplicate is an Outcome, never an error. Each tick, its depth
// levels and the registry availability update commit atomically.
package store
