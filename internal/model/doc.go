// Package model defines the shared data types of the market-by-price store.
//
// All types mirror the instrument, mbp and bid_ask relations.
//
// Conventions:
//   - Prices: int64 fixed point, 1 unit = 1e-9 (see PriceScale)
//   - Timestamps: int64 nanoseconds since Unix epoch
//   - Optional book fields: pointers, nil = absent (never zero)
package model
