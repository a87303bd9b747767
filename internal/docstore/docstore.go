// Package docstore persists semi-structured canonical records as
// documents. Two backends exist: an embedded SQLite store for local
// work and tests, and MongoDB for deployments.
package docstore

import "context"

// Store is a key-addressed document upsert surface. Upserts are
// idempotent per (collection, key); replaying a document replaces it
// wholesale.
type Store interface {
	// UpsertDocument writes doc under (collection, key) and reports
	// whether the write created a new document.
	UpsertDocument(ctx context.Context, collection, key string, doc map[string]any) (inserted bool, err error)
	// Ping verifies store connectivity.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
