package database

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.SQLitePath)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type}

	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS monitoring_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			test_interval_minutes INTEGER NOT NULL,
			max_history_items INTEGER NOT NULL,
			auto_test_enabled BOOLEAN NOT NULL,
			manual_stress_mode_enabled BOOLEAN NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS monitoring_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_test_timestamp BIGINT NOT NULL DEFAULT 0,
			last_result TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS stress_history (
			id TEXT PRIMARY KEY,
			stress_level INTEGER NOT NULL,
			dominant_expression TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			seq BIGINT NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_stress_history_recency
			ON stress_history (timestamp DESC, seq DESC);`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}
