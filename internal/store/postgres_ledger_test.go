package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/mbp-history/internal/model"
)

// fakeDB stands in for the mbp and bid_ask tables behind a pgx.Tx.
type fakeDB struct {
	instruments map[int64]bool
	nextID      int64

	// insertErr fails every tick insert when set.
	insertErr error

	// levelErrAt fails level inserts of the tick with that ts_event.
	levelErrAt map[int64]error

	// widened lists instrument ids in UPDATE order.
	widened    []int64
	savepoints int
	rolledBack int
}

func newFakeDB(instruments ...int64) *fakeDB {
	db := &fakeDB{instruments: make(map[int64]bool), levelErrAt: make(map[int64]error)}
	for _, id := range instruments {
		db.instruments[id] = true
	}
	return db
}

// fakeTx is a transaction or savepoint. Rows written inside a savepoint move
// to its parent on Commit and are discarded on Rollback.
type fakeTx struct {
	pgx.Tx

	db     *fakeDB
	parent *fakeTx
	done   bool

	ticks  map[string]int64 // tick args -> id
	tsByID map[int64]int64
	levels map[int64]int
}

func newFakeTx(db *fakeDB, parent *fakeTx) *fakeTx {
	return &fakeTx{
		db:     db,
		parent: parent,
		ticks:  make(map[string]int64),
		tsByID: make(map[int64]int64),
		levels: make(map[int64]int),
	}
}

func (tx *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	tx.db.savepoints++
	return newFakeTx(tx.db, tx), nil
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.parent != nil {
		for k, id := range tx.ticks {
			tx.parent.ticks[k] = id
		}
		for id, ts := range tx.tsByID {
			tx.parent.tsByID[id] = ts
		}
		for id, n := range tx.levels {
			tx.parent.levels[id] += n
		}
	}
	tx.done = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.done {
		tx.db.rolledBack++
		tx.done = true
	}
	return nil
}

func (tx *fakeTx) exists(key string) bool {
	for t := tx; t != nil; t = t.parent {
		if _, ok := t.ticks[key]; ok {
			return true
		}
	}
	return false
}

func (tx *fakeTx) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if tx.db.insertErr != nil {
		return fakeRow{err: tx.db.insertErr}
	}
	if !tx.db.instruments[args[0].(int64)] {
		return fakeRow{err: &pgconn.PgError{Code: "23503", ConstraintName: "mbp_instrument_id_fkey"}}
	}
	key := fmt.Sprint(args...)
	if tx.exists(key) {
		return fakeRow{err: pgx.ErrNoRows}
	}
	tx.db.nextID++
	id := tx.db.nextID
	tx.ticks[key] = id
	tx.tsByID[id] = args[1].(int64)
	return fakeRow{id: id}
}

func (tx *fakeTx) tsOf(id int64) int64 {
	for t := tx; t != nil; t = t.parent {
		if ts, ok := t.tsByID[id]; ok {
			return ts
		}
	}
	return 0
}

func (tx *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	for _, q := range b.QueuedQueries {
		id := q.Arguments[0].(int64)
		if err := tx.db.levelErrAt[tx.tsOf(id)]; err != nil {
			return &fakeResults{err: err}
		}
		tx.levels[id]++
	}
	return &fakeResults{}
}

func (tx *fakeTx) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	tx.db.widened = append(tx.db.widened, args[0].(int64))
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.id
	return nil
}

type fakeResults struct {
	pgx.BatchResults
	err error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func (r *fakeResults) Close() error { return nil }

func appendFake(t *testing.T, db *fakeDB, ticks ...model.Tick) (BatchOutcome, *fakeTx, error) {
	t.Helper()
	p := NewPostgres(nil, nil)
	out, valid := prepareBatch(ticks)
	tx := newFakeTx(db, nil)
	err := p.appendInTx(context.Background(), tx, valid, &out)
	return out, tx, err
}

func TestAppendInTx_DuplicatesWithinBatch(t *testing.T) {
	db := newFakeDB(1)
	dup := testTick(1, 1000, 1)

	out, tx, err := appendFake(t, db, dup, dup, testTick(1, 2000, 2), dup)
	if err != nil {
		t.Fatalf("appendInTx() error = %v", err)
	}
	if out.Inserted != 2 || out.Duplicates != 2 || len(out.Rejected) != 0 {
		t.Errorf("outcome = %+v, want 2 inserted, 2 duplicates", out)
	}
	if len(tx.ticks) != 2 {
		t.Errorf("rows = %d, want 2", len(tx.ticks))
	}
	for id, n := range tx.levels {
		if n != 2 {
			t.Errorf("tick %d has %d levels, want 2", id, n)
		}
	}
	if db.savepoints != 4 {
		t.Errorf("savepoints = %d, want one per tick", db.savepoints)
	}
}

func TestAppendInTx_ForeignKeyRejectionKeepsSiblings(t *testing.T) {
	db := newFakeDB(1)

	out, tx, err := appendFake(t, db, testTick(1, 1000, 1), testTick(99, 1500, 1), testTick(1, 2000, 2))
	if err != nil {
		t.Fatalf("appendInTx() error = %v", err)
	}
	if out.Inserted != 2 || len(out.Rejected) != 1 {
		t.Fatalf("outcome = %+v, want 2 inserted, 1 rejected", out)
	}
	rej := out.Rejected[0]
	if rej.InstrumentID != 99 || !errors.Is(rej, ErrConstraintViolation) {
		t.Errorf("rejection = %v, want constraint violation for instrument 99", rej)
	}
	if db.rolledBack != 1 {
		t.Errorf("savepoint rollbacks = %d, want 1", db.rolledBack)
	}
	if len(tx.ticks) != 2 {
		t.Errorf("rows = %d, want 2", len(tx.ticks))
	}
	if len(db.widened) != 1 || db.widened[0] != 1 {
		t.Errorf("widened = %v, want [1]", db.widened)
	}
}

func TestAppendInTx_LevelFailureRollsBackTick(t *testing.T) {
	db := newFakeDB(1)
	db.levelErrAt[2000] = &pgconn.PgError{Code: "23505", ConstraintName: "bid_ask_mbp_id_depth_key"}

	out, tx, err := appendFake(t, db, testTick(1, 1000, 1), testTick(1, 2000, 2))
	if err != nil {
		t.Fatalf("appendInTx() error = %v", err)
	}
	if out.Inserted != 1 || len(out.Rejected) != 1 {
		t.Fatalf("outcome = %+v, want 1 inserted, 1 rejected", out)
	}
	if len(tx.ticks) != 1 {
		t.Errorf("rows = %d, want the failed tick rolled back", len(tx.ticks))
	}
	for id, ts := range tx.tsByID {
		if ts == 2000 {
			t.Errorf("tick %d at ts 2000 should not survive its savepoint", id)
		}
	}
}

func TestAppendInTx_UnavailableFailsBatch(t *testing.T) {
	db := newFakeDB(1)
	db.insertErr = &pgconn.PgError{Code: "08006"}

	_, _, err := appendFake(t, db, testTick(1, 1000, 1), testTick(1, 2000, 2))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("appendInTx() error = %v, want ErrUnavailable", err)
	}
	var ingestErr *IngestError
	if !errors.As(err, &ingestErr) || ingestErr.InstrumentID != 1 {
		t.Errorf("error = %v, want IngestError for instrument 1", err)
	}
	if len(db.widened) != 0 {
		t.Errorf("widened = %v, want none", db.widened)
	}
}

func TestAppendInTx_WidensInIDOrder(t *testing.T) {
	db := newFakeDB(1, 3, 5, 9)

	out, _, err := appendFake(t, db,
		testTick(5, 1000, 1),
		testTick(3, 1000, 1),
		testTick(9, 1000, 1),
		testTick(1, 1000, 1),
		testTick(5, 900, 2),
	)
	if err != nil {
		t.Fatalf("appendInTx() error = %v", err)
	}
	if out.Inserted != 5 {
		t.Fatalf("Inserted = %d, want 5", out.Inserted)
	}
	want := []int64{1, 3, 5, 9}
	if len(db.widened) != len(want) {
		t.Fatalf("widened = %v, want %v", db.widened, want)
	}
	for i := range want {
		if db.widened[i] != want[i] {
			t.Errorf("widened = %v, want %v", db.widened, want)
			break
		}
	}
}

func TestSortByKey(t *testing.T) {
	ticks := []model.Tick{
		testTick(2, 1000, 1),
		testTick(1, 2000, 1),
		testTick(1, 1000, 2),
		testTick(1, 1000, 1),
	}
	sortByKey(ticks)

	want := [][3]int64{{1, 1000, 1}, {1, 1000, 2}, {1, 2000, 1}, {2, 1000, 1}}
	for i, w := range want {
		got := [3]int64{ticks[i].InstrumentID, ticks[i].TsEvent, int64(ticks[i].Sequence)}
		if got != w {
			t.Errorf("ticks[%d] = %v, want %v", i, got, w)
		}
	}
}
