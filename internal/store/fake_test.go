package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v4"
)

type call struct {
	sql  string
	args []interface{}
}

// fakeDB records statements and serves canned rows. Rows are keyed by a
// substring of the SQL text.
type fakeDB struct {
	mu sync.Mutex

	execs   []call
	queries []call

	beginErr error
	execErr  map[int]error // by index into execs
	queryErr error
	rows     map[string][][]interface{}

	begun, committed, rolledBack int
}

func (db *fakeDB) exec(sql string, args []interface{}) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	idx := len(db.execs)
	db.execs = append(db.execs, call{sql: sql, args: args})
	if err := db.execErr[idx]; err != nil {
		return nil, err
	}
	return pgconn.CommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) query(sql string, args []interface{}) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.queries = append(db.queries, call{sql: sql, args: args})
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	for key, data := range db.rows {
		if strings.Contains(sql, key) {
			return &fakeRows{data: data}, nil
		}
	}
	return &fakeRows{}, nil
}

type fakePool struct {
	db *fakeDB
}

var _ Pool = &fakePool{}

func (p *fakePool) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return p.db.exec(sql, args)
}
func (p *fakePool) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return p.db.query(sql, args)
}
func (p *fakePool) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	rows, err := p.db.query(sql, args)
	return &fakeRow{rows: rows, err: err}
}
func (p *fakePool) Begin(context.Context) (Tx, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	if p.db.beginErr != nil {
		return nil, p.db.beginErr
	}
	p.db.begun++
	return &fakeTx{db: p.db}, nil
}
func (p *fakePool) Ping(context.Context) error { return nil }
func (p *fakePool) Close()                     {}

type fakeTx struct {
	db   *fakeDB
	done bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return tx.db.exec(sql, args)
}
func (tx *fakeTx) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return tx.db.query(sql, args)
}
func (tx *fakeTx) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	rows, err := tx.db.query(sql, args)
	return &fakeRow{rows: rows, err: err}
}
func (tx *fakeTx) Commit(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.db.mu.Lock()
	tx.db.committed++
	tx.db.mu.Unlock()
	return nil
}
func (tx *fakeTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.db.mu.Lock()
	tx.db.rolledBack++
	tx.db.mu.Unlock()
	return nil
}

type fakeRows struct {
	data   [][]interface{}
	i      int
	err    error
	closed bool
}

var _ pgx.Rows = &fakeRows{}

func (r *fakeRows) Close()     { r.closed = true }
func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag(fmt.Sprintf("SELECT %d", len(r.data)))
}
func (r *fakeRows) FieldDescriptions() []pgproto3.FieldDescription {
	if len(r.data) == 0 {
		return nil
	}
	fds := make([]pgproto3.FieldDescription, len(r.data[0]))
	for i := range fds {
		fds[i] = pgproto3.FieldDescription{Name: []byte(fmt.Sprintf("col%d", i))}
	}
	return fds
}
func (r *fakeRows) Next() bool {
	if r.closed || r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.data[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for j, d := range dest {
		switch d := d.(type) {
		case *string:
			v, ok := row[j].(string)
			if !ok {
				return fmt.Errorf("scan: column %d is %T, not string", j, row[j])
			}
			*d = v
		case *time.Time:
			v, ok := row[j].(time.Time)
			if !ok {
				return fmt.Errorf("scan: column %d is %T, not time.Time", j, row[j])
			}
			*d = v
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}
func (r *fakeRows) Values() ([]interface{}, error) {
	return append([]interface{}(nil), r.data[r.i-1]...), nil
}
func (r *fakeRows) RawValues() [][]byte { return nil }

type fakeRow struct {
	rows pgx.Rows
	err  error
}

func (r *fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}
