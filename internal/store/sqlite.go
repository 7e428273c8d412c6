package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db  *sql.DB
	key string
}

func NewSQLiteStore(dataSourceName, key string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// One connection keeps ":memory:" databases stable and serializes writers.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	store := &SQLiteStore{db: db, key: key}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS kv (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Conversation, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", s.key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return []Conversation{}, nil
		}
		return nil, errors.Wrap(err, "failed to query saved conversations")
	}
	return decodeOrEmpty(DriverSQLite, []byte(value)), nil
}

func (s *SQLiteStore) Save(ctx context.Context, conversations []Conversation) error {
	data, err := Encode(conversations)
	if err != nil {
		return err
	}

	stmt, err := s.db.PrepareContext(ctx, `
        INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
    `)
	if err != nil {
		return errors.Wrap(err, "failed to prepare conversations upsert")
	}
	defer stmt.Close()

	if _, err = stmt.ExecContext(ctx, s.key, string(data), time.Now()); err != nil {
		return errors.Wrap(err, "failed to execute conversations upsert")
	}
	return nil
}

// putRaw writes an arbitrary value into the slot. Tests use it to plant
// damaged data.
func (s *SQLiteStore) putRaw(ctx context.Context, value string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", s.key, value)
	return err
}
