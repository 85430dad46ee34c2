package config

import (
	"fmt"
	"os"
	"strings"
)

// DefaultHistoryPath is the SQLite file used when history is enabled without a connection string.
const DefaultHistoryPath = "sdtmflow_history.db"

// DBConfig locates the run history store.
type DBConfig struct {
	Type string `yaml:"type" json:"type"`
	Conn string `yaml:"conn" json:"conn"`
	// BusyTimeoutMS applies to SQLite only.
	BusyTimeoutMS int `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
}

// LoadDBConfig resolves the history store for commands that run without a run configuration.
// Environment variables win over the defaults; SQLite in the working directory is the fallback.
func LoadDBConfig() DBConfig {
	cfg := DBConfig{Type: "sqlite", Conn: DefaultHistoryPath}
	if v := os.Getenv("SDTM_DB_TYPE"); v != "" {
		cfg.Type = v
		cfg.Conn = ""
	}
	if v := os.Getenv("SDTM_DB_CONN"); v != "" {
		cfg.Conn = v
	}
	if cfg.Conn == "" && cfg.Type == "sqlite" {
		cfg.Conn = DefaultHistoryPath
	}
	return cfg
}

// Driver maps the configured type onto a registered database/sql driver name.
func (c DBConfig) Driver() (string, error) {
	switch strings.ToLower(c.Type) {
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	case "mysql", "mariadb":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", c.Type)
	}
}

// DSN returns the connection string handed to sql.Open. SQLite files get WAL and a busy timeout.
func (c DBConfig) DSN() string {
	driver, _ := c.Driver()
	if driver != "sqlite" || strings.Contains(c.Conn, "?") || strings.HasPrefix(c.Conn, ":memory:") {
		return c.Conn
	}
	busy := c.BusyTimeoutMS
	if busy <= 0 {
		busy = 2000
	}
	return c.Conn + fmt.Sprintf("?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)", busy)
}

// Enabled reports whether a history store is configured.
func (c DBConfig) Enabled() bool {
	return c.Type != ""
}
