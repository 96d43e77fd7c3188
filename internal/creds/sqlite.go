package creds

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend stores the credential in a single-row sqlite table. This is
// the privileged backend: it survives restarts and keeps the key out of
// world-readable flat files.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and if needed creates) the credential database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS credential (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			api_key TEXT NOT NULL,
			user_id TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Load() (*Credential, error) {
	if b == nil || b.db == nil {
		return nil, errors.New("credential database is closed")
	}

	var c Credential
	row := b.db.QueryRow("SELECT api_key, user_id FROM credential WHERE id = 1")
	if err := row.Scan(&c.APIKey, &c.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (b *SQLiteBackend) Save(c *Credential) error {
	if b == nil || b.db == nil {
		return errors.New("credential database is closed")
	}
	if c == nil {
		return errors.New("credential cannot be nil")
	}

	_, err := b.db.Exec(
		"INSERT INTO credential (id, api_key, user_id) VALUES (1, ?, ?) "+
			"ON CONFLICT(id) DO UPDATE SET api_key = excluded.api_key, user_id = excluded.user_id",
		c.APIKey, c.UserID,
	)
	return err
}

func (b *SQLiteBackend) Clear() error {
	if b == nil || b.db == nil {
		return errors.New("credential database is closed")
	}

	_, err := b.db.Exec("DELETE FROM credential WHERE id = 1")
	return err
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return errors.New("credential database already closed")
	}

	err := b.db.Close()
	b.db = nil
	return err
}
