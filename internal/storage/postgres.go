package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresTokenStore keeps the broker token in a single-row table, shared
// with whatever admin process performs the brokerage authentication.
type PostgresTokenStore struct {
	db *sql.DB
}

// NewPostgresTokenStore opens the database and ensures the schema exists.
func NewPostgresTokenStore(connString string) (*PostgresTokenStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresTokenStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresTokenStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS broker_tokens (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Load reads the broker token.
func (s *PostgresTokenStore) Load(ctx context.Context) (*BrokerToken, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM broker_tokens WHERE id = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var token BrokerToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("decoding broker token: %w", err)
	}
	return &token, nil
}

// Save upserts the broker token.
func (s *PostgresTokenStore) Save(ctx context.Context, token *BrokerToken) error {
	token.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(token)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO broker_tokens (id, payload, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, payload, token.UpdatedAt)
	return err
}

// Ping verifies database connectivity.
func (s *PostgresTokenStore) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection.
func (s *PostgresTokenStore) Close() error {
	return s.db.Close()
}
