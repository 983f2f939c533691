package query

import (
	"fmt"
	"time"
)

// Schema names a retrieval record layout.
type Schema string

const (
	SchemaMbp1    Schema = "mbp-1"
	SchemaTrade   Schema = "trade"
	SchemaTBBO    Schema = "tbbo"
	SchemaOHLCV1S Schema = "ohlcv-1s"
	SchemaOHLCV1M Schema = "ohlcv-1m"
	SchemaOHLCV1H Schema = "ohlcv-1h"
	SchemaOHLCV1D Schema = "ohlcv-1d"
	SchemaBBO1S   Schema = "bbo-1s"
	SchemaBBO1M   Schema = "bbo-1m"
)

var schemaIntervals = map[Schema]time.Duration{
	SchemaMbp1:    time.Nanosecond,
	SchemaTrade:   time.Nanosecond,
	SchemaTBBO:    time.Nanosecond,
	SchemaOHLCV1S: time.Second,
	SchemaOHLCV1M: time.Minute,
	SchemaOHLCV1H: time.Hour,
	SchemaOHLCV1D: 24 * time.Hour,
	SchemaBBO1S:   time.Second,
	SchemaBBO1M:   time.Minute,
}

// ParseSchema validates a schema name.
func ParseSchema(s string) (Schema, error) {
	schema := Schema(s)
	if _, ok := schemaIntervals[schema]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSchema, s)
	}
	return schema, nil
}

// Interval returns the bar width in nanoseconds, 1 for tick schemas and 0
// for an unknown schema.
func (s Schema) Interval() int64 {
	return schemaIntervals[s].Nanoseconds()
}

// IsBar reports whether records are aggregated over an interval.
func (s Schema) IsBar() bool {
	return s.Interval() > 1
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start int64
	End   int64
}

// RetrieveParams describes a multi-symbol retrieval. Start and End are
// inclusive ts_event bounds. For bar schemas both are aligned down to the
// bar interval, so only bars starting before End's bar are returned.
type RetrieveParams struct {
	Symbols []string
	Start   int64
	End     int64
	Schema  Schema
}

// Validate checks the parameters before the first window is taken.
func (p RetrieveParams) Validate() error {
	if err := p.validateRequest(); err != nil {
		return err
	}
	if p.Start > p.End {
		return fmt.Errorf("%w: start %d after end %d", ErrInvalidRange, p.Start, p.End)
	}
	return nil
}

// validateRequest checks everything except the bounds, which NextWindow
// moves past End once the range is exhausted.
func (p RetrieveParams) validateRequest() error {
	if len(p.Symbols) == 0 {
		return fmt.Errorf("%w: no symbols", ErrInvalidRange)
	}
	_, err := ParseSchema(string(p.Schema))
	return err
}

// NextWindow returns the next window of at most batch nanoseconds and
// advances Start past it. The window start is aligned down to the schema
// interval and, for bar schemas, batch is rounded up to a whole number of
// intervals so no bar spans two windows. It returns false once the range is
// exhausted. A batch <= 0 returns the rest of the range as one window.
func (p *RetrieveParams) NextWindow(batch int64) (Window, bool) {
	interval := p.Schema.Interval()
	if interval <= 0 {
		return Window{}, false
	}

	limit := p.End + 1
	if interval > 1 {
		limit = alignDown(p.End, interval)
	}

	start := alignDown(p.Start, interval)
	if start >= limit {
		return Window{}, false
	}

	if batch > 0 && interval > 1 && batch%interval != 0 {
		batch += interval - batch%interval
	}

	end := limit
	if batch > 0 && start+batch < limit {
		end = start + batch
	}

	p.Start = end
	return Window{Start: start, End: end}, true
}
