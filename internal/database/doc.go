// Package database provides the PostgreSQL connection pool for the market store.
//
// The schema (instrument, mbp, bid_ask and their constraints) is owned by
// migration tooling. VerifySchema checks it at startup so a missing relation
// fails fast instead of surfacing on the first write.
package database
