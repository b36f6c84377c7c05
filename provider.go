package pgbroker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPool adapts *pgxpool.Pool to the Pool interface.
type pgxPool struct {
	pool *pgxpool.Pool
}

func (p pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (p pgxPool) Close() {
	p.pool.Close()
}

// NewPgxPoolProvider returns the default PoolProvider, backed by pgxpool.
// Every pool it creates uses the same PoolConfig and session settings.
// Panics on invalid duration strings in config (programmer error); returns
// errors only for runtime failures against a specific connection string.
func NewPgxPoolProvider(config PoolConfig, timezone string) PoolProvider {
	// Validate duration strings once, up front, instead of on every
	// registration.
	parseDur := func(field, val string) time.Duration {
		if val == "" {
			return 0
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			panic(fmt.Sprintf("pgbroker: invalid pool.%s %q: %v", field, val, err))
		}
		return d
	}
	maxLifetime := parseDur("max_conn_lifetime", config.MaxConnLifetime)
	maxIdleTime := parseDur("max_conn_idle_time", config.MaxConnIdleTime)
	healthPeriod := parseDur("health_check_period", config.HealthCheckPeriod)

	return func(ctx context.Context, connString string) (Pool, error) {
		poolConfig, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}

		poolConfig.MaxConns = int32(config.MaxConns)
		poolConfig.MinConns = int32(config.MinConns)
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
		if maxLifetime > 0 {
			poolConfig.MaxConnLifetime = maxLifetime
		}
		if maxIdleTime > 0 {
			poolConfig.MaxConnIdleTime = maxIdleTime
		}
		if healthPeriod > 0 {
			poolConfig.HealthCheckPeriod = healthPeriod
		}

		if timezone != "" {
			escaped := strings.ReplaceAll(timezone, "'", "''")
			poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				if _, err := conn.Exec(ctx, fmt.Sprintf("SET timezone = '%s'", escaped)); err != nil {
					return fmt.Errorf("failed to SET timezone: %w", err)
				}
				return nil
			}
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, err
		}

		// Fail registration eagerly if the database is unreachable, so a
		// bad connection string never gets a handle.
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}

		return pgxPool{pool: pool}, nil
	}
}
