package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/mbp-history/internal/model"
)

// Postgres is the production Store over the instrument, mbp and bid_ask
// relations. Reads take no locks and see committed rows only.
type Postgres struct {
	db     *pgxpool.Pool
	cache  *InstrumentCache
	logger *slog.Logger
}

// NewPostgres creates a Postgres store on an open pool.
func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		db:     db,
		cache:  NewInstrumentCache(),
		logger: logger,
	}
}

const instrumentColumns = `id, ticker,
	COALESCE(name, ''), COALESCE(vendor, ''), COALESCE(stype, ''), COALESCE(dataset, ''),
	COALESCE(first_available, 0), COALESCE(last_available, 0), active`

// Resolve returns the id of a known ticker, or ErrNotFound.
func (p *Postgres) Resolve(ctx context.Context, ticker string) (int64, error) {
	if id, ok := p.cache.Get(ticker); ok {
		return id, nil
	}

	var id int64
	err := p.db.QueryRow(ctx, `SELECT id FROM instrument WHERE ticker = $1`, ticker).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("resolve %q: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve %q: %w", ticker, classifyError(err))
	}

	p.cache.Put(ticker, id)
	return id, nil
}

// GetOrCreate registers inst.Ticker if it is new and returns its id. The
// insert is conflict-aware, so concurrent callers converge on one row.
func (p *Postgres) GetOrCreate(ctx context.Context, inst model.Instrument) (int64, error) {
	if inst.Ticker == "" {
		return 0, fmt.Errorf("register instrument: %w: empty ticker", ErrInvariantViolation)
	}
	if id, ok := p.cache.Get(inst.Ticker); ok {
		return id, nil
	}

	var id int64
	err := p.db.QueryRow(ctx, `
		INSERT INTO instrument (ticker, name, vendor, stype, dataset, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (ticker) DO NOTHING
		RETURNING id
	`, inst.Ticker, inst.Name, inst.Vendor, inst.Stype, inst.Dataset).Scan(&id)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Already registered, possibly by a concurrent writer.
		return p.Resolve(ctx, inst.Ticker)
	case err != nil:
		return 0, fmt.Errorf("register %q: %w", inst.Ticker, classifyError(err))
	}

	p.logger.Info("instrument registered", "ticker", inst.Ticker, "id", id)
	p.cache.Put(inst.Ticker, id)
	return id, nil
}

// Get returns an instrument by id.
func (p *Postgres) Get(ctx context.Context, id int64) (model.Instrument, error) {
	row := p.db.QueryRow(ctx, `SELECT `+instrumentColumns+` FROM instrument WHERE id = $1`, id)
	inst, err := scanInstrument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Instrument{}, fmt.Errorf("get instrument %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Instrument{}, fmt.Errorf("get instrument %d: %w", id, classifyError(err))
	}
	return inst, nil
}

// List returns instruments ordered by ticker.
func (p *Postgres) List(ctx context.Context, activeOnly bool) ([]model.Instrument, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+instrumentColumns+`
		FROM instrument
		WHERE active OR NOT $1
		ORDER BY ticker
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", classifyError(err))
	}
	defer rows.Close()

	var result []model.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		result = append(result, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list instruments: %w", classifyError(err))
	}
	return result, nil
}

// UpdateAvailability widens the availability bounds to include ts.
func (p *Postgres) UpdateAvailability(ctx context.Context, id, ts int64) error {
	if err := widenAvailability(ctx, p.db, id, ts, ts); err != nil {
		return fmt.Errorf("update availability %d: %w", id, err)
	}
	return nil
}

// Activate marks an instrument active.
func (p *Postgres) Activate(ctx context.Context, id int64) error {
	return p.setActive(ctx, id, true)
}

// Deactivate soft-deletes an instrument. Its history is kept.
func (p *Postgres) Deactivate(ctx context.Context, id int64) error {
	return p.setActive(ctx, id, false)
}

func (p *Postgres) setActive(ctx context.Context, id int64, active bool) error {
	ct, err := p.db.Exec(ctx, `UPDATE instrument SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set active %d: %w", id, classifyError(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set active %d: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes an instrument with all of its ticks and depth levels.
// Children are deleted before parents inside one transaction.
func (p *Postgres) Delete(ctx context.Context, id int64) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete instrument %d: %w", id, classifyError(err))
	}
	defer tx.Rollback(ctx)

	levels, err := tx.Exec(ctx, `
		DELETE FROM bid_ask
		WHERE mbp_id IN (SELECT id FROM mbp WHERE instrument_id = $1)
	`, id)
	if err != nil {
		return fmt.Errorf("delete levels of %d: %w", id, classifyError(err))
	}
	ticks, err := tx.Exec(ctx, `DELETE FROM mbp WHERE instrument_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticks of %d: %w", id, classifyError(err))
	}
	ct, err := tx.Exec(ctx, `DELETE FROM instrument WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete instrument %d: %w", id, classifyError(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("delete instrument %d: %w", id, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete %d: %w", id, classifyError(err))
	}
	p.cache.Evict(id)

	p.logger.Warn("instrument deleted",
		"id", id,
		"ticks", ticks.RowsAffected(),
		"levels", levels.RowsAffected(),
	)
	return nil
}

// execer is satisfied by the pool and by transactions.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// widenAvailability never narrows: LEAST/GREATEST ignore the NULL of a fresh
// instrument and keep the wider of old and new bounds.
func widenAvailability(ctx context.Context, db execer, id, minTs, maxTs int64) error {
	ct, err := db.Exec(ctx, `
		UPDATE instrument
		SET first_available = LEAST(first_available, $2),
		    last_available = GREATEST(last_available, $3)
		WHERE id = $1
	`, id, minTs, maxTs)
	if err != nil {
		return classifyError(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInstrument(row pgx.Row) (model.Instrument, error) {
	var inst model.Instrument
	err := row.Scan(
		&inst.ID,
		&inst.Ticker,
		&inst.Name,
		&inst.Vendor,
		&inst.Stype,
		&inst.Dataset,
		&inst.FirstAvailable,
		&inst.LastAvailable,
		&inst.Active,
	)
	return inst, err
}
