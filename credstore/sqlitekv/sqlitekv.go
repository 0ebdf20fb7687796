// Package sqlitekv backs the credential store with a local SQLite database,
// the default durable store for a single-user client process.
package sqlitekv

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/orbitlabs/go-session-client/credstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

var _ credstore.KV = (*KV)(nil)

// KV persists values in a single key/value table, created on open.
type KV struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*KV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitekv.Open] open database")
	}
	// The credential store has a single writer; one connection avoids
	// SQLITE_BUSY on concurrent reads during a write.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlitekv.Open] create schema")
	}
	return &KV{db: db}, nil
}

func (kv *KV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := kv.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", credstore.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "[sqlitekv.Get]")
	}
	return value, nil
}

func (kv *KV) Set(ctx context.Context, key, value string) error {
	_, err := kv.db.ExecContext(ctx,
		`INSERT INTO credentials (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.Wrap(err, "[sqlitekv.Set]")
	}
	return nil
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	if _, err := kv.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, "[sqlitekv.Delete]")
	}
	return nil
}

// Close releases the underlying database handle.
func (kv *KV) Close() error {
	return kv.db.Close()
}
