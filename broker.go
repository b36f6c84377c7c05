package pgbroker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/pgbroker/pgbroker/internal/errprompt"
)

// Broker is the core engine: a connection registry plus the Query,
// ListTables, and DescribeTable tools operating on registered connection IDs.
// All exported methods are safe for concurrent use from multiple goroutines.
type Broker struct {
	config     Config
	registry   *Registry
	errPrompts *errprompt.Matcher
	logger     zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	provider PoolProvider
}

// WithPoolProvider overrides the default pgxpool-backed PoolProvider.
// Used by tests to substitute fakes.
func WithPoolProvider(p PoolProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// New creates a new Broker. No database connection is made here — pools are
// created lazily when agents register connection strings via Connect.
// Panics on invalid config. Returns error only for runtime failures.
func New(config Config, logger zerolog.Logger, opts ...Option) (*Broker, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Config validation (panics on invalid config) ---

	if config.Pool.MaxConns <= 0 {
		panic("pgbroker: pool.max_conns must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("pgbroker: query.default_timeout_seconds must be > 0")
	}
	if config.Query.ListTablesTimeoutSeconds <= 0 {
		panic("pgbroker: query.list_tables_timeout_seconds must be > 0")
	}
	if config.Query.DescribeTableTimeoutSeconds <= 0 {
		panic("pgbroker: query.describe_table_timeout_seconds must be > 0")
	}

	// Apply defaults for zero values
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.MaxSQLLength < 0 {
		panic("pgbroker: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("pgbroker: query.max_result_length must be > 0")
	}

	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		provider = NewPgxPoolProvider(config.Pool, config.Timezone)
	}

	return &Broker{
		config:     config,
		registry:   NewRegistry(provider, logger),
		errPrompts: matcher,
		logger:     logger,
	}, nil
}

// Connect registers connString and returns its connection ID. Registering the
// same string again returns the same ID without creating a second pool.
func (b *Broker) Connect(ctx context.Context, connString string) (string, error) {
	return b.registry.Register(ctx, connString)
}

// Disconnect closes the pool behind connID and removes the handle. A second
// Disconnect on the same ID fails with ErrUnknownConnection.
func (b *Broker) Disconnect(connID string) error {
	return b.registry.Close(connID)
}

// CloseAll closes every remaining pool. Called once at process shutdown —
// never implicitly when an individual client session ends.
func (b *Broker) CloseAll() {
	b.registry.CloseAll()
}

// Registry exposes the broker's connection registry.
func (b *Broker) Registry() *Registry {
	return b.registry
}

// mapErrorPromptRules converts pgbroker ErrorPromptRules to internal
// errprompt.Rules.
func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}

// IsUnknownConnection reports whether err is (or wraps) ErrUnknownConnection.
func IsUnknownConnection(err error) bool {
	return errors.Is(err, ErrUnknownConnection)
}
