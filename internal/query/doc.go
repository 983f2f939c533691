// Package query reconstructs books and derived series from the tick and
// depth ledgers.
//
// All time bounds are ts_event nanoseconds. Range arguments are inclusive
// unless a method says otherwise.
package query
