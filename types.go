package pgbroker

// ConnectOutput is the output of the Connect tool.
type ConnectOutput struct {
	ConnID string `json:"conn_id"`
}

// DisconnectOutput is the output of the Disconnect tool. Error carries
// "Unknown connection ID" when the ID was not registered.
type DisconnectOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// QueryInput is the input for the Query tool.
type QueryInput struct {
	ConnID string `json:"conn_id"`
	SQL    string `json:"query"`
}

// QueryOutput is the output of the Query tool. All errors (Postgres errors,
// unknown connection IDs, Go errors) are placed in Error. The error message
// is evaluated against error_prompts and matching prompt messages are
// appended. Callers only need to check output.Error, never a Go error.
type QueryOutput struct {
	Columns      []string                 `json:"columns"`
	Rows         []map[string]interface{} `json:"rows"`
	RowsAffected int64                    `json:"rows_affected"`
	Error        string                   `json:"error,omitempty"`
}

// ListTablesInput is the input for the ListTables tool.
type ListTablesInput struct {
	ConnID string `json:"conn_id"`
}

// ListTablesOutput is the output of the ListTables tool: table names in the
// public schema, ordered by name.
type ListTablesOutput struct {
	Tables []string `json:"tables"`
	Error  string   `json:"error,omitempty"`
}

// DescribeTableInput is the input for the DescribeTable tool.
type DescribeTableInput struct {
	ConnID string `json:"conn_id"`
	Table  string `json:"table"`
}

// ColumnRecord describes a single column of a table, in ordinal position
// order.
type ColumnRecord struct {
	Column string `json:"column"`
	Type   string `json:"type"`
}

// DescribeTableOutput is the output of the DescribeTable tool.
type DescribeTableOutput struct {
	Columns []ColumnRecord `json:"columns"`
	Error   string         `json:"error,omitempty"`
}
