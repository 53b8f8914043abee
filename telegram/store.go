package telegram

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// storeTimeout bounds a single insert issued from the event loop.
const storeTimeout = 2 * time.Second

// Store persists telegrams in a SQLite database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenStore opens or creates the database at path and applies migrations.
func OpenStore(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening telegram store: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening telegram store: %w", err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)

	return &Store{db: db, log: log.With().Str("component", "store").Logger()}, nil
}

// HandleTelegram inserts t, logging rather than returning a failure.
func (s *Store) HandleTelegram(t Telegram) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if _, err := s.Insert(ctx, t); err != nil {
		s.log.Error().Err(err).Str("source", t.Source).Msg("storing telegram")
	}
}

// Insert stores t and returns its generated id.
func (s *Store) Insert(ctx context.Context, t Telegram) (string, error) {
	id := uuid.NewString()
	received := t.Received
	if received.IsZero() {
		received = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telegrams (id, source, received_at, payload) VALUES (?, ?, ?, ?)`,
		id, t.Source, received.UnixMilli(), t.Payload)
	if err != nil {
		return "", fmt.Errorf("inserting telegram: %w", err)
	}
	return id, nil
}

// Recent returns up to limit telegrams, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Telegram, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, received_at, payload FROM telegrams ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying telegrams: %w", err)
	}
	defer rows.Close()

	var out []Telegram
	for rows.Next() {
		var t Telegram
		var ms int64
		if err := rows.Scan(&t.Source, &ms, &t.Payload); err != nil {
			return nil, fmt.Errorf("scanning telegram: %w", err)
		}
		t.Received = time.UnixMilli(ms)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of stored telegrams.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telegrams`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting telegrams: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
