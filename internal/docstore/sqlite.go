package docstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. Documents live
// in one table keyed by (collection, doc_key) with a JSON payload.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "docstore: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "docstore: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	doc_key    TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (collection, doc_key)
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// Migrate creates the documents table if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "docstore: migrate sqlite")
}

func (s *SQLiteStore) UpsertDocument(ctx context.Context, collection, key string, doc map[string]any) (bool, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return false, eris.Wrapf(err, "docstore: marshal document %s/%s", collection, key)
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE collection = ? AND doc_key = ?`,
		collection, key,
	).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, eris.Wrapf(err, "docstore: check document %s/%s", collection, key)
	}
	inserted := err == sql.ErrNoRows

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, doc_key, payload, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT (collection, doc_key) DO UPDATE
		   SET payload = excluded.payload, updated_at = datetime('now')`,
		collection, key, string(payload),
	)
	if err != nil {
		return false, eris.Wrapf(err, "docstore: upsert document %s/%s", collection, key)
	}
	return inserted, nil
}

// GetDocument returns a stored document, or nil if none exists.
func (s *SQLiteStore) GetDocument(ctx context.Context, collection, key string) (map[string]any, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM documents WHERE collection = ? AND doc_key = ?`,
		collection, key,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: get document %s/%s", collection, key)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, eris.Wrapf(err, "docstore: unmarshal document %s/%s", collection, key)
	}
	return doc, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "docstore: ping sqlite")
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
