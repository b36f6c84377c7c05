package pgbroker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Conn is a single pooled connection borrowed for the duration of one
// operation, with guaranteed return via Release. *pgxpool.Conn satisfies it.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Release()
}

// Pool is the subset of pgxpool.Pool the registry needs. Pools manage their
// own internal concurrency; the registry only brokers access to them.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Close()
}

// PoolProvider creates a connection pool for a connection string. The default
// provider is backed by pgxpool (see NewPgxPoolProvider); tests substitute
// fakes.
type PoolProvider func(ctx context.Context, connString string) (Pool, error)

type entry struct {
	id         string
	connString string
	pool       Pool
}

// Registry owns the bidirectional mapping between opaque connection IDs,
// connection strings, and their pools. At most one pool exists per distinct
// connection string; IDs are unique for the process lifetime. All exported
// methods are safe for concurrent use from multiple goroutines.
//
// Pools live until Close(id) or CloseAll() — never tied to a session or
// request boundary.
type Registry struct {
	provider PoolProvider
	logger   zerolog.Logger

	// Serializes pool creation per connection string, so concurrent
	// registration of the same string never races into two pools while
	// registration of distinct strings proceeds independently.
	group singleflight.Group

	mu    sync.RWMutex
	byID  map[string]*entry
	byDSN map[string]*entry
}

// NewRegistry creates a Registry backed by the given PoolProvider.
// Panics if provider is nil.
func NewRegistry(provider PoolProvider, logger zerolog.Logger) *Registry {
	if provider == nil {
		panic("pgbroker: PoolProvider must be non-nil")
	}
	return &Registry{
		provider: provider,
		logger:   logger,
		byID:     make(map[string]*entry),
		byDSN:    make(map[string]*entry),
	}
}

// Register returns the connection ID for connString, creating a pool on first
// registration. Registering an already-known string returns the existing ID
// without creating a second pool. The mapping is committed only once the pool
// is fully ready, so a failed or cancelled registration leaves no partial
// handle behind.
func (r *Registry) Register(ctx context.Context, connString string) (string, error) {
	r.mu.RLock()
	e, ok := r.byDSN[connString]
	r.mu.RUnlock()
	if ok {
		return e.id, nil
	}

	v, err, _ := r.group.Do(connString, func() (interface{}, error) {
		// A concurrent caller may have committed between the fast path
		// and entering the flight.
		r.mu.RLock()
		e, ok := r.byDSN[connString]
		r.mu.RUnlock()
		if ok {
			return e.id, nil
		}

		// Pool creation suspends on I/O; the map lock is not held here.
		pool, err := r.provider(ctx, connString)
		if err != nil {
			return nil, &PoolCreationError{Err: err}
		}

		ent := &entry{id: uuid.NewString(), connString: connString, pool: pool}
		r.mu.Lock()
		r.byID[ent.id] = ent
		r.byDSN[connString] = ent
		r.mu.Unlock()

		r.logger.Info().Str("conn_id", ent.id).Msg("connection registered")
		return ent.id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Acquire borrows a connection from the pool behind id. The caller must call
// Release on the returned Conn on every exit path. Fails with
// ErrUnknownConnection if id is not registered.
func (r *Registry) Acquire(ctx context.Context, id string) (Conn, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownConnection
	}
	// The pool reference stays valid even if the entry is removed
	// concurrently; pgxpool drains borrowed connections on Close.
	return e.pool.Acquire(ctx)
}

// Close tears down the pool behind id and removes both directions of the
// mapping atomically. A second Close on the same id fails with
// ErrUnknownConnection.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownConnection
	}
	delete(r.byID, e.id)
	delete(r.byDSN, e.connString)
	r.mu.Unlock()

	e.pool.Close()
	r.logger.Info().Str("conn_id", id).Msg("connection closed")
	return nil
}

// CloseAll tears down every remaining pool. Called once at process shutdown,
// never on individual session end.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.byID = make(map[string]*entry)
	r.byDSN = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.pool.Close()
	}
	if len(entries) > 0 {
		r.logger.Info().Int("pool_count", len(entries)).Msg("all connections closed")
	}
}

// Len returns the number of live connection handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
