package pgbroker

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool         PoolConfig        `json:"pool"`
	Query        QueryConfig       `json:"query"`
	ErrorPrompts []ErrorPromptRule `json:"error_prompts"`
	Timezone     string            `json:"timezone"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Server  ServerSettings `json:"server"`
	Logging LoggingConfig  `json:"logging"`
}

// PoolConfig holds connection pool settings. One pool is created per distinct
// registered connection string; these settings apply to each of them.
type PoolConfig struct {
	MaxConns          int    `json:"max_conns"`
	MinConns          int    `json:"min_conns"`
	MaxConnLifetime   string `json:"max_conn_lifetime"`
	MaxConnIdleTime   string `json:"max_conn_idle_time"`
	HealthCheckPeriod string `json:"health_check_period"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds       int `json:"default_timeout_seconds"`
	ListTablesTimeoutSeconds    int `json:"list_tables_timeout_seconds"`
	DescribeTableTimeoutSeconds int `json:"describe_table_timeout_seconds"`
	MaxSQLLength                int `json:"max_sql_length"`
	MaxResultLength             int `json:"max_result_length"`
}

// ErrorPromptRule maps an error message pattern to a guidance message
// appended to query errors before they are returned to the agent.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}
