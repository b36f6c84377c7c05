package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pgbroker/pgbroker/internal/extract"
)

// session is the slice of the MCP client the pipeline needs.
type session interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	GetPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
}

// generator produces model output for a prompt.
type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// queryResult is what the pipeline hands to the renderer.
type queryResult struct {
	SQL     string
	Columns []string
	Rows    []map[string]interface{}
}

// run executes the full ask pipeline: register the connection, build the
// schema-aware prompt, generate SQL, execute it, and disconnect. The
// connection is disconnected on every path once connect has succeeded, even
// when a later step fails.
func run(ctx context.Context, s session, gen generator, databaseURL, question string, progress io.Writer) (*queryResult, error) {
	fmt.Fprintf(progress, "Connecting to database...\n")

	connID, err := connect(ctx, s, databaseURL)
	if err != nil {
		return nil, err
	}
	// Pools on the broker are process-scoped; an abandoned connection ID
	// keeps its pool alive until the broker restarts.
	defer disconnect(ctx, s, connID, progress)

	fmt.Fprintf(progress, "Fetching schema prompt (conn %s)...\n", connID)

	prompt, err := fetchPrompt(ctx, s, connID, question)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(progress, "Generating SQL...\n")

	reply, err := gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("model generation failed: %w", err)
	}

	extracted, ok := extract.Extract(reply)
	if !ok {
		return nil, fmt.Errorf("no SQL statement found in model output:\n%s", reply)
	}
	sql := extract.Finalize(extracted)

	fmt.Fprintf(progress, "Executing: %s\n", sql)

	columns, rows, err := execQuery(ctx, s, connID, sql, progress)
	if err != nil {
		return nil, err
	}

	return &queryResult{SQL: sql, Columns: columns, Rows: rows}, nil
}

func connect(ctx context.Context, s session, databaseURL string) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = "connect"
	req.Params.Arguments = map[string]any{"connection_string": databaseURL}

	result, err := s.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("connect failed: %w", err)
	}
	text, err := firstText(result)
	if err != nil {
		return "", fmt.Errorf("connect failed: %w", err)
	}
	if result.IsError {
		return "", fmt.Errorf("connect failed: %s", text)
	}

	var out struct {
		ConnID string `json:"conn_id"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil || out.ConnID == "" {
		return "", fmt.Errorf("connect returned unexpected payload: %s", text)
	}
	return out.ConnID, nil
}

// disconnect is best effort. The broker cleans up on shutdown regardless, so
// a failed disconnect is reported but never fails the pipeline.
func disconnect(ctx context.Context, s session, connID string, progress io.Writer) {
	req := mcp.CallToolRequest{}
	req.Params.Name = "disconnect"
	req.Params.Arguments = map[string]any{"conn_id": connID}

	if _, err := s.CallTool(ctx, req); err != nil {
		fmt.Fprintf(progress, "Warning: disconnect failed: %v\n", err)
		return
	}
	fmt.Fprintf(progress, "Disconnected.\n")
}

func fetchPrompt(ctx context.Context, s session, connID, question string) (string, error) {
	req := mcp.GetPromptRequest{}
	req.Params.Name = "generate_sql"
	req.Params.Arguments = map[string]string{
		"conn_id":  connID,
		"nl_query": question,
	}

	result, err := s.GetPrompt(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch generate_sql prompt: %w", err)
	}
	if len(result.Messages) == 0 {
		return "", errors.New("generate_sql prompt returned no messages")
	}

	var parts []string
	for _, msg := range result.Messages {
		if tc, ok := mcp.AsTextContent(msg.Content); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("generate_sql prompt contained no text content")
	}
	return strings.Join(parts, "\n"), nil
}

// execQuery runs the pg_query tool and decodes its row stream. The broker
// sends one JSON text item per row; each is either an object or a list of
// objects. Items that fail to decode are skipped with a warning rather than
// aborting the whole result.
func execQuery(ctx context.Context, s session, connID, sql string, progress io.Writer) ([]string, []map[string]interface{}, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = "pg_query"
	req.Params.Arguments = map[string]any{
		"conn_id": connID,
		"query":   sql,
	}

	result, err := s.CallTool(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("query failed: %w", err)
	}
	if result.IsError {
		text, _ := firstText(result)
		return nil, nil, fmt.Errorf("query failed: %s", text)
	}

	var rows []map[string]interface{}
	for _, content := range result.Content {
		tc, ok := mcp.AsTextContent(content)
		if !ok {
			continue
		}

		var row map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Text), &row); err == nil {
			rows = append(rows, row)
			continue
		}
		var list []map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Text), &list); err == nil {
			rows = append(rows, list...)
			continue
		}
		fmt.Fprintf(progress, "Warning: skipping malformed row payload: %s\n", tc.Text)
	}

	return columnOrder(rows), rows, nil
}

// columnOrder derives a stable column ordering from the first row. JSON
// objects do not preserve key order, so columns are sorted.
func columnOrder(rows []map[string]interface{}) []string {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

func firstText(result *mcp.CallToolResult) (string, error) {
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			return tc.Text, nil
		}
	}
	return "", errors.New("no text content in tool result")
}
