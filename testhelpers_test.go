package pgbroker_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rickchristie/govner/pgflock/client"
	"github.com/rs/zerolog"

	pgbroker "github.com/pgbroker/pgbroker"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func acquireTestDB(t *testing.T) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Fatalf("Failed to acquire test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() pgbroker.Config {
	return pgbroker.Config{
		Pool: pgbroker.PoolConfig{MaxConns: 5},
		Query: pgbroker.QueryConfig{
			DefaultTimeoutSeconds:       30,
			ListTablesTimeoutSeconds:    10,
			DescribeTableTimeoutSeconds: 10,
			MaxSQLLength:                100000,
			MaxResultLength:             100000,
		},
	}
}

// newTestBroker creates a Broker backed by a real pgflock database and
// registers its connection string. The returned conn ID addresses that
// database.
func newTestBroker(t *testing.T, config pgbroker.Config) (*pgbroker.Broker, string) {
	t.Helper()
	connStr := acquireTestDB(t)
	b, err := pgbroker.New(config, testLogger())
	if err != nil {
		t.Fatalf("Failed to create broker: %v", err)
	}
	t.Cleanup(b.CloseAll)

	connID, err := b.Connect(context.Background(), connStr)
	if err != nil {
		t.Fatalf("Failed to register connection: %v", err)
	}
	return b, connID
}

func setupTable(t *testing.T, b *pgbroker.Broker, connID, sql string) {
	t.Helper()
	output := b.Query(context.Background(), pgbroker.QueryInput{ConnID: connID, SQL: sql})
	if output.Error != "" {
		t.Fatalf("setup query failed: %s", output.Error)
	}
}

// --- Fakes for unit tests that never touch a database ---

// fakeProvider counts pool creations per connection string.
type fakeProvider struct {
	mu      sync.Mutex
	created map[string]int
	err     error
	pools   []*fakePool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{created: make(map[string]int)}
}

func (f *fakeProvider) provide(ctx context.Context, connString string) (pgbroker.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created[connString]++
	pool := &fakePool{}
	f.pools = append(f.pools, pool)
	return pool, nil
}

func (f *fakeProvider) createdCount(connString string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[connString]
}

type fakePool struct {
	mu       sync.Mutex
	closed   bool
	acquired int
	conn     *fakeConn
}

func (p *fakePool) Acquire(ctx context.Context) (pgbroker.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired++
	if p.conn != nil {
		return p.conn, nil
	}
	return &fakeConn{}, nil
}

func (p *fakePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeConn hands out a scripted transaction for Begin and scripted rows for
// direct Query (the path ListTables and DescribeTable take).
type fakeConn struct {
	tx           *fakeTx
	queryRows    *fakeRows
	describeRows *fakeRows // replayed for information_schema.columns queries
	beginErr     error
	released     bool
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	if c.tx == nil {
		c.tx = &fakeTx{}
	}
	return c.tx, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	script := c.queryRows
	if c.describeRows != nil && strings.Contains(sql, "information_schema.columns") {
		script = c.describeRows
	}
	if script != nil {
		// Fresh replay per call; tools may query the same handle repeatedly.
		rows := *script
		rows.pos = 0
		return &rows, nil
	}
	return &fakeRows{}, nil
}

func (c *fakeConn) Release() { c.released = true }

// fakeTx embeds pgx.Tx so only the methods the query path uses need real
// implementations; calling anything else panics, which is what we want.
type fakeTx struct {
	pgx.Tx
	rows       *fakeRows
	queryErr   error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	if t.rows == nil {
		t.rows = &fakeRows{}
	}
	return t.rows, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// fakeRows replays scripted column names and value rows.
type fakeRows struct {
	pgx.Rows
	columns []string
	values  [][]any
	tag     string
	rowsErr error
	pos     int
	closed  bool
}

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	descs := make([]pgconn.FieldDescription, len(r.columns))
	for i, name := range r.columns {
		descs[i] = pgconn.FieldDescription{Name: name}
	}
	return descs
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.values[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.values[r.pos-1]
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *int:
			*ptr = row[i].(int)
		default:
			return fmt.Errorf("fakeRows.Scan: unsupported dest type %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return r.rowsErr }

func (r *fakeRows) Close() { r.closed = true }

func (r *fakeRows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(r.tag)
}
