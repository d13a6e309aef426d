package testhelpers

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// FakeTx is a no-op pgx.Tx for unit tests. Repositories are mocked at the
// port level, so the transaction only needs to track commit/rollback calls.
type FakeTx struct {
	Committed  bool
	RolledBack bool
	CommitErr  error
}

var _ pgx.Tx = (*FakeTx)(nil)

func (t *FakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *FakeTx) Commit(ctx context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

func (t *FakeTx) Rollback(ctx context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}

func (t *FakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (t *FakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *FakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *FakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (t *FakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (t *FakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (t *FakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (t *FakeTx) Conn() *pgx.Conn { return nil }

// FakeTxManager hands out FakeTx instances
type FakeTxManager struct {
	Tx       *FakeTx
	BeginErr error
}

// BeginTx returns the configured transaction or error
func (m *FakeTxManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	if m.Tx == nil {
		m.Tx = &FakeTx{}
	}
	return m.Tx, nil
}
