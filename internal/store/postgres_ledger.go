package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/mbp-history/internal/model"
)

// insertTickSQL inserts one tick unless its natural key already exists.
// No returned row means Duplicate.
const insertTickSQL = `
	INSERT INTO mbp (instrument_id, ts_event, ts_recv, ts_in_delta, price, size, action, side,
		flags, sequence, discriminator, order_book_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (instrument_id, ts_event, price, size, flags, sequence, order_book_hash,
		ts_recv, action, side, discriminator) DO NOTHING
	RETURNING id
`

const insertLevelSQL = `
	INSERT INTO bid_ask (mbp_id, depth, bid_px, bid_sz, bid_ct, ask_px, ask_sz, ask_ct)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const tickColumns = `id, instrument_id, ts_event, ts_recv, ts_in_delta, price, size, action, side,
	flags, sequence, discriminator, order_book_hash`

const levelColumns = `depth, bid_px, bid_sz, bid_ct, ask_px, ask_sz, ask_ct`

// Append stores one tick with its levels.
func (p *Postgres) Append(ctx context.Context, tick model.Tick) (Outcome, error) {
	return appendOne(ctx, p, tick)
}

// AppendBatch stores ticks in one transaction, each inside its own
// savepoint. A failing event rolls back only its savepoint. Availability
// bounds of every touched instrument are widened before commit.
func (p *Postgres) AppendBatch(ctx context.Context, ticks []model.Tick) (BatchOutcome, error) {
	out, valid := prepareBatch(ticks)
	if len(valid) == 0 {
		return out, nil
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return BatchOutcome{}, fmt.Errorf("begin batch: %w", classifyError(err))
	}
	defer tx.Rollback(ctx)

	if err := p.appendInTx(ctx, tx, valid, &out); err != nil {
		return BatchOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BatchOutcome{}, fmt.Errorf("commit batch: %w", classifyError(err))
	}
	return out, nil
}

// appendInTx inserts prepared ticks into tx and widens the availability of
// every instrument that gained a row. Ticks go in natural-key order and
// instruments are updated in id order, so concurrent batches take row locks
// in the same order. A returned error leaves tx unusable.
func (p *Postgres) appendInTx(ctx context.Context, tx pgx.Tx, ticks []model.Tick, out *BatchOutcome) error {
	sortByKey(ticks)

	spans := make(map[int64]*span)
	for _, t := range ticks {
		inserted, err := p.insertTick(ctx, tx, t)
		if err != nil {
			err = classifyError(err)
			if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
				return newIngestError(t, err)
			}
			p.logger.Warn("tick rejected",
				"instrument_id", t.InstrumentID,
				"ts_event", t.TsEvent,
				"sequence", t.Sequence,
				"error", err,
			)
			out.Rejected = append(out.Rejected, newIngestError(t, err))
			continue
		}
		if !inserted {
			out.Duplicates++
			continue
		}
		out.Inserted++
		widenSpans(spans, t.InstrumentID, t.TsEvent)
	}

	ids := make([]int64, 0, len(spans))
	for id := range spans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s := spans[id]
		if err := widenAvailability(ctx, tx, id, s.min, s.max); err != nil {
			return fmt.Errorf("widen availability %d: %w", id, err)
		}
	}
	return nil
}

// insertTick writes one tick and its levels inside a savepoint of tx.
func (p *Postgres) insertTick(ctx context.Context, tx pgx.Tx, t model.Tick) (bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer sp.Rollback(ctx)

	var id int64
	err = sp.QueryRow(ctx, insertTickSQL, tickArgs(t)...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, sp.Commit(ctx)
	}
	if err != nil {
		return false, err
	}

	if len(t.Levels) > 0 {
		batch := &pgx.Batch{}
		for _, l := range t.Levels {
			batch.Queue(insertLevelSQL, levelArgs(id, l)...)
		}
		results := sp.SendBatch(ctx, batch)
		for range t.Levels {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return false, err
			}
		}
		if err := results.Close(); err != nil {
			return false, err
		}
	}

	if err := sp.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Range returns ticks with from <= ts_event <= to ordered by (ts_event, sequence).
func (p *Postgres) Range(ctx context.Context, instrumentID, from, to int64) ([]model.Tick, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+tickColumns+`
		FROM mbp
		WHERE instrument_id = $1 AND ts_event BETWEEN $2 AND $3
		ORDER BY ts_event, sequence, id
	`, instrumentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("range %d [%d, %d]: %w", instrumentID, from, to, classifyError(err))
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("range %d: %w", instrumentID, classifyError(err))
	}
	return ticks, nil
}

// LatestBefore returns the most recent tick with ts_event <= ts.
func (p *Postgres) LatestBefore(ctx context.Context, instrumentID, ts int64) (model.Tick, bool, error) {
	row := p.db.QueryRow(ctx, `
		SELECT `+tickColumns+`
		FROM mbp
		WHERE instrument_id = $1 AND ts_event <= $2
		ORDER BY ts_event DESC, sequence DESC, id DESC
		LIMIT 1
	`, instrumentID, ts)

	t, err := scanTick(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tick{}, false, nil
	}
	if err != nil {
		return model.Tick{}, false, fmt.Errorf("latest before %d for %d: %w", ts, instrumentID, classifyError(err))
	}
	return t, true, nil
}

// Count returns the number of ticks stored for an instrument.
func (p *Postgres) Count(ctx context.Context, instrumentID int64) (int64, error) {
	var n int64
	err := p.db.QueryRow(ctx, `SELECT count(*) FROM mbp WHERE instrument_id = $1`, instrumentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ticks %d: %w", instrumentID, classifyError(err))
	}
	return n, nil
}

// LevelsFor returns a tick's levels ordered by depth.
func (p *Postgres) LevelsFor(ctx context.Context, tickID int64) ([]model.DepthLevel, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+levelColumns+`
		FROM bid_ask
		WHERE mbp_id = $1
		ORDER BY depth
	`, tickID)
	if err != nil {
		return nil, fmt.Errorf("levels for %d: %w", tickID, classifyError(err))
	}
	defer rows.Close()

	var levels []model.DepthLevel
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("levels for %d: %w", tickID, classifyError(err))
	}
	return levels, nil
}

// TopLevels returns the depth-0 level of each tick that has one.
func (p *Postgres) TopLevels(ctx context.Context, tickIDs []int64) (map[int64]model.DepthLevel, error) {
	result := make(map[int64]model.DepthLevel, len(tickIDs))
	if len(tickIDs) == 0 {
		return result, nil
	}

	rows, err := p.db.Query(ctx, `
		SELECT mbp_id, `+levelColumns+`
		FROM bid_ask
		WHERE mbp_id = ANY($1) AND depth = 0
	`, tickIDs)
	if err != nil {
		return nil, fmt.Errorf("top levels: %w", classifyError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var tickID int64
		var r levelRow
		if err := rows.Scan(append([]any{&tickID}, r.dest()...)...); err != nil {
			return nil, fmt.Errorf("scan top level: %w", err)
		}
		result[tickID] = r.toModel()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top levels: %w", classifyError(err))
	}
	return result, nil
}
