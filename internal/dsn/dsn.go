package dsn

import "fmt"

// RelationalConfig carries the connection parameters for a relational
// baseline store, mirroring the shape dbclient's DatabaseConnection took
// before being handed to its per-driver DSN builders.
type RelationalConfig struct {
	Driver   string // "sqlite" | "mysql" | "postgres"
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSLMode  string
}

// Build returns the driver name registered with database/sql and the DSN
// string for cfg.
func Build(cfg RelationalConfig) (driverName, dataSourceName string, err error) {
	switch cfg.Driver {
	case "sqlite":
		return "sqlite", buildSQLiteDSN(cfg), nil
	case "mysql":
		return "mysql", buildMySQLDSN(cfg), nil
	case "postgres", "postgresql":
		return "postgres", buildPostgresDSN(cfg), nil
	default:
		return "", "", fmt.Errorf("unsupported relational driver: %q", cfg.Driver)
	}
}

// buildMySQLDSN follows go-sql-driver/mysql's DSN grammar.
func buildMySQLDSN(cfg RelationalConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	d := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
	if cfg.SSLMode == "require" {
		d += "&tls=true"
	}
	return d
}

// buildPostgresDSN follows lib/pq's key=value connection string grammar.
func buildPostgresDSN(cfg RelationalConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.Username, cfg.Password, cfg.Database, sslMode)
}

// buildSQLiteDSN opens cfg.Host (a file path) in WAL mode with a busy
// timeout, matching every other SQLite consumer in this codebase.
func buildSQLiteDSN(cfg RelationalConfig) string {
	return cfg.Host + "?_journal_mode=WAL&_busy_timeout=5000"
}
