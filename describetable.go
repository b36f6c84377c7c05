package pgbroker

import (
	"context"
	"fmt"
	"time"
)

// The table name is always passed as a bound parameter — never interpolated
// into the statement.
const describeTableSQL = `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'public'
  AND table_name = $1
ORDER BY ordinal_position;
`

// DescribeTable returns the column names and types of input.Table in the
// public schema of the database behind input.ConnID, in ordinal position
// order. An unknown table yields an empty column list, not an error. Fails
// with ErrUnknownConnection if the ID is not registered.
func (b *Broker) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	startTime := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(b.config.Query.DescribeTableTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := b.registry.Acquire(queryCtx, input.ConnID)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(queryCtx, describeTableSQL, input.Table)
	if err != nil {
		return nil, fmt.Errorf("DescribeTable query failed: %w", err)
	}
	defer rows.Close()

	columns := []ColumnRecord{}
	for rows.Next() {
		var col ColumnRecord
		if err := rows.Scan(&col.Column, &col.Type); err != nil {
			return nil, fmt.Errorf("DescribeTable scan failed: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DescribeTable rows error: %w", err)
	}

	b.logger.Info().
		Str("conn_id", input.ConnID).
		Str("table", input.Table).
		Dur("duration", time.Since(startTime)).
		Int("column_count", len(columns)).
		Msg("DescribeTable executed")

	return &DescribeTableOutput{Columns: columns}, nil
}
