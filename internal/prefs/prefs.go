// Package prefs persists user preferences in SQLite.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/prose/internal/apperr"
)

// Preference keys.
const (
	KeyTheme = "selectedTheme"
	KeyFont  = "selectedFont"
)

// Defaults for keys that were never set.
var Defaults = map[string]string{
	KeyTheme: "warm-cream",
	KeyFont:  "theme-default",
}

// Fonts is the fixed set of selectable fonts.
var Fonts = []string{
	"theme-default", "roboto", "inter", "open-sans", "lato",
	"source-sans", "georgia", "crimson", "merriweather",
}

var themeRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS preferences (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store reads and writes preferences.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	Close() error
}

// DB is the SQLite Store.
type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// Open opens (or creates) the preferences database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("prefs: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("prefs: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("prefs: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Get returns the value of key, or its default when unset.
func (db *DB) Get(ctx context.Context, key string) (string, error) {
	def, ok := Defaults[key]
	if !ok {
		return "", apperr.Invalid(apperr.ErrInvalid, "unknown preference %q", key)
	}
	var v string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return v, nil
}

// Set validates and stores value under key.
func (db *DB) Set(ctx context.Context, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}

// All returns every known key with its stored or default value.
func (db *DB) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(Defaults))
	for k, v := range Defaults {
		out[k] = v
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return nil, fmt.Errorf("prefs: list: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("prefs: scan: %w", err)
		}
		if _, known := Defaults[k]; known {
			out[k] = v
		}
	}
	return out, rows.Err()
}

// Validate checks value against the rules for key.
func Validate(key, value string) error {
	var err error
	switch key {
	case KeyTheme:
		err = validation.Validate(value, validation.Required, validation.Length(1, 64), validation.Match(themeRe))
	case KeyFont:
		fonts := make([]any, len(Fonts))
		for i, f := range Fonts {
			fonts[i] = f
		}
		err = validation.Validate(value, validation.Required, validation.In(fonts...))
	default:
		return apperr.Invalid(apperr.ErrInvalid, "unknown preference %q", key)
	}
	if err != nil {
		return apperr.Invalid(apperr.ErrInvalid, "%s: %v", key, err)
	}
	return nil
}
