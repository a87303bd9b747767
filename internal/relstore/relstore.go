// Package relstore upserts structured canonical records into the
// relational store.
package relstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hnsc-omics/omics-cli/internal/db"
	"github.com/hnsc-omics/omics-cli/internal/model"
)

// Store writes structured records to their per-kind tables.
type Store struct {
	pool db.Pool
}

// New creates a Store backed by the given connection pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertRecord writes one record to its kind's table, keyed by natural
// key, and returns the row reference plus whether the write inserted a
// new row. Replaying the same record is a no-op beyond refreshing
// updated_at. Value kinds take the latest observation wholesale; samples
// are enrichment-only after creation, so their existing non-null columns
// are kept and attributes merge additively.
func (s *Store) UpsertRecord(ctx context.Context, rec *model.CanonicalRecord) (*model.RelationalRef, bool, error) {
	table := model.TableForKind(rec.Kind)

	fields := rec.Fields()
	if len(rec.Attributes) > 0 {
		attrJSON, err := json.Marshal(rec.Attributes)
		if err != nil {
			return nil, false, eris.Wrapf(err, "relstore: marshal attributes for %s", rec.NaturalKey)
		}
		fields["attributes"] = attrJSON
	}
	fields["updated_at"] = time.Now().UTC()

	var inserted bool
	var err error
	if rec.Kind == model.KindSample {
		inserted, err = db.UpsertRowAdditive(ctx, s.pool, table, "natural_key", rec.NaturalKey, fields,
			map[string]bool{"updated_at": true})
	} else {
		inserted, err = db.UpsertRow(ctx, s.pool, table, "natural_key", rec.NaturalKey, fields)
	}
	if err != nil {
		return nil, false, err
	}
	return &model.RelationalRef{Table: table, Key: rec.NaturalKey}, inserted, nil
}

// Ping verifies store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return eris.Wrap(err, "relstore: ping")
	}
	return nil
}
