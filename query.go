package pgbroker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Query executes input.SQL verbatim on the pool behind input.ConnID and
// returns only QueryOutput. All errors (unknown connection ID, Postgres
// errors, Go errors) are converted to output.Error; the error message is then
// evaluated against error_prompts patterns and matching prompt messages are
// appended. Callers only need to check output.Error, never a Go error.
//
// The statement runs inside a transaction: read-only statements are rolled
// back after collecting results, writes are committed. A failed statement
// therefore leaves the connection handle fully usable for subsequent queries.
// Failures are never retried — retry policy belongs to the caller.
func (b *Broker) Query(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()
	sql := input.SQL

	if len(sql) > b.config.Query.MaxSQLLength {
		return b.handleError(fmt.Errorf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(sql), b.config.Query.MaxSQLLength))
	}

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(b.config.Query.DefaultTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := b.registry.Acquire(queryCtx, input.ConnID)
	if err != nil {
		return b.handleError(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(queryCtx)
	if err != nil {
		return b.handleError(err)
	}
	// Rollback uses the parent ctx — if the query timed out, queryCtx is
	// already cancelled and rollback would fail.
	defer tx.Rollback(ctx)

	rows, err := tx.Query(queryCtx, sql)
	if err != nil {
		return b.handleError(&QueryExecutionError{Err: err})
	}

	result, err := b.collectRows(rows)
	if err != nil {
		return b.handleError(&QueryExecutionError{Err: err})
	}

	if isReadOnlyStatement(sql) {
		tx.Rollback(ctx)
	} else if err := tx.Commit(queryCtx); err != nil {
		return b.handleError(&QueryExecutionError{Err: err})
	}

	b.truncateIfNeeded(result)

	b.logger.Info().
		Str("conn_id", input.ConnID).
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(result.Rows)).
		Int64("rows_affected", result.RowsAffected).
		Msg("query executed")

	return result
}

// isReadOnlyStatement returns true if the SQL parses as a read-only
// statement. Anything that fails to parse is treated as a write so it still
// goes through commit and surfaces the real database error.
func isReadOnlyStatement(sql string) bool {
	result, err := pg_query.Parse(sql)
	if err != nil || len(result.Stmts) == 0 {
		return false
	}
	node := result.Stmts[0].Stmt
	switch node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return true
	case *pg_query.Node_ExplainStmt:
		return true
	case *pg_query.Node_VariableShowStmt:
		return true
	default:
		return false
	}
}

// collectRows reads all rows from pgx.Rows and returns a QueryOutput.
func (b *Broker) collectRows(rows pgx.Rows) (*QueryOutput, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([]map[string]interface{}, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rowsAffected := rows.CommandTag().RowsAffected()

	return &QueryOutput{Columns: columns, Rows: resultRows, RowsAffected: rowsAffected}, nil
}

// convertValue converts a pgx-returned value to a JSON-friendly Go type.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.InfinityModifier == pgtype.Infinity {
			return "Infinity"
		}
		if val.InfinityModifier == pgtype.NegativeInfinity {
			return "-Infinity"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// bytea, xml — base64 encode
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, v := range val {
			result[k] = convertValue(v)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, v := range val {
			result[i] = convertValue(v)
		}
		return result
	default:
		return val
	}
}

func convertFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}

// handleError converts any error into a QueryOutput with error message.
// The error message is evaluated against error_prompts — matching prompt
// messages are appended.
func (b *Broker) handleError(err error) *QueryOutput {
	errMsg := err.Error()
	prompt := b.errPrompts.Match(errMsg)
	patterns := b.errPrompts.MatchedPatterns(errMsg)

	logEvent := b.logger.Error().Err(err)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("query error")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return &QueryOutput{Error: errMsg}
}

// truncateIfNeeded truncates query output rows if they exceed
// MaxResultLength (in characters).
func (b *Broker) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= b.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	truncated := string(runes[:b.config.Query.MaxResultLength])
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog truncates a string for log output to avoid oversized log
// entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
