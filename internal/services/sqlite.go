package services

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite implements the history store on top of a SQLite database. It is an alternative to BoltDB for
// deployments that already manage SQLite files.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and initializes the schema.
func NewSQLite(path string) (SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return SQLite{}, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return SQLite{}, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return SQLite{}, fmt.Errorf("ping database: %w", err)
	}

	s := SQLite{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return SQLite{}, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS historics (
		client_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		topic TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (client_id, topic)
	);
	CREATE INDEX IF NOT EXISTS idx_historics_position ON historics(client_id, position);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s SQLite) Close() error {
	return s.db.Close()
}

// Topics retrieves the topics studied by the client in the order they were first studied.
func (s SQLite) Topics(ctx context.Context, clientID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic FROM historics WHERE client_id = ? ORDER BY position`, clientID)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("scan topic row: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic rows: %w", err)
	}
	return topics, nil
}

// AddTopic appends topic to the client's history. A topic that is already present is not added
// again.
func (s SQLite) AddTopic(ctx context.Context, clientID, topic string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO historics (client_id, position, topic, created_at)
		SELECT ?, COALESCE(MAX(position), 0) + 1, ?, ?
		FROM historics WHERE client_id = ?
		ON CONFLICT (client_id, topic) DO NOTHING`,
		clientID, topic, time.Now().Unix(), clientID)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

// ClearTopics removes every topic of the client.
func (s SQLite) ClearTopics(ctx context.Context, clientID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM historics WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("delete topics: %w", err)
	}
	return nil
}
