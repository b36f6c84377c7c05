package pgbroker

import (
	"context"
	"fmt"
	"time"
)

const listTablesSQL = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public'
ORDER BY table_name;
`

// ListTables returns the table names in the public schema of the database
// behind input.ConnID, ordered by name. Fails with ErrUnknownConnection if
// the ID is not registered.
func (b *Broker) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(b.config.Query.ListTablesTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := b.registry.Acquire(queryCtx, input.ConnID)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(queryCtx, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("ListTables query failed: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ListTables scan failed: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTables rows error: %w", err)
	}

	b.logger.Info().
		Str("conn_id", input.ConnID).
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Tables: tables}, nil
}
