package postgres_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// rowsStub implements pgx.Rows. Tests set n to the row count and assign
// destination pointers inside scan, keyed by the zero-based row index.
type rowsStub struct {
	n       int
	idx     int
	scan    func(i int, dest ...any) error
	scanErr error
	rowsErr error
	closed  bool
}

func (r *rowsStub) Next() bool {
	if r.idx < r.n {
		r.idx++
		return true
	}
	return false
}

func (r *rowsStub) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.scan == nil {
		return errors.New("no scan configured")
	}
	return r.scan(r.idx-1, dest...)
}

func (r *rowsStub) Close()                                       { r.closed = true }
func (r *rowsStub) Err() error                                   { return r.rowsErr }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                       { return nil, nil }
func (r *rowsStub) RawValues() [][]byte                          { return nil }
func (r *rowsStub) Conn() *pgx.Conn                              { return nil }

// txStub implements pgx.Tx, recording executed statements so tests can assert
// on commit and rollback ordering.
type txStub struct {
	execSQL    []string
	execArgs   [][]any
	execErr    func(sql string) error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execSQL = append(t.execSQL, sql)
	t.execArgs = append(t.execArgs, args)
	if t.execErr != nil {
		if err := t.execErr(sql); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *txStub) Commit(_ context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *txStub) Rollback(_ context.Context) error {
	t.rolledBack = true
	return nil
}

func (t *txStub) Begin(_ context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *txStub) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *txStub) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *txStub) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *txStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *txStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
}
func (t *txStub) Conn() *pgx.Conn { return nil }

// poolStub implements postgres.PgxPool for tests. It records every statement
// and serves queued rows in order. Defined in a shared helper so multiple
// *_test.go files can reuse it without redefs.
type poolStub struct {
	execErr  error
	execTag  pgconn.CommandTag
	execSQL  []string
	execArgs [][]any

	rows    []rowStub // served by QueryRow in order, last one sticky
	rowSQL  []string
	rowArgs [][]any

	queryRows *rowsStub
	queryErr  error
	querySQL  []string
	queryArgs [][]any

	tx       *txStub
	beginErr error
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	if p.execErr != nil {
		return pgconn.CommandTag{}, p.execErr
	}
	return p.execTag, nil
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.rowSQL = append(p.rowSQL, sql)
	p.rowArgs = append(p.rowArgs, args)
	if len(p.rows) == 0 {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	r := p.rows[0]
	if len(p.rows) > 1 {
		p.rows = p.rows[1:]
	}
	return r
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.querySQL = append(p.querySQL, sql)
	p.queryArgs = append(p.queryArgs, args)
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.queryRows == nil {
		return &rowsStub{}, nil
	}
	return p.queryRows, nil
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if p.tx == nil {
		p.tx = &txStub{}
	}
	return p.tx, nil
}

