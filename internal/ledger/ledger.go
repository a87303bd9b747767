package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/hnsc-omics/omics-cli/internal/db"
	"github.com/hnsc-omics/omics-cli/internal/model"
)

// ErrStaleEntry is returned when a stage update loses the optimistic
// concurrency check: another run touched the entry since it was read.
// Callers re-read and decide whether their transition still applies.
var ErrStaleEntry = eris.New("ledger: entry changed since read")

const mappingColumns = `mapping_id, source, kind, natural_key,
	rel_table, rel_key, doc_collection, doc_key, sample_key,
	integration_type, last_stage, error_reason, updated_at`

// Ledger provides read/write access to omics.entity_mapping.
type Ledger struct {
	pool db.Pool
}

// New creates a Ledger backed by the given connection pool.
func New(pool db.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Get returns the entry for a mapping ID, or nil if none exists.
func (l *Ledger) Get(ctx context.Context, mappingID string) (*model.EntityMapping, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM omics.entity_mapping WHERE mapping_id = $1`,
		mappingID,
	)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: get %s", mappingID)
	}
	return m, nil
}

// GetByIdentity returns the entry for a (source, kind, naturalKey)
// triple, or nil if none exists.
func (l *Ledger) GetByIdentity(ctx context.Context, source string, kind model.RecordKind, naturalKey string) (*model.EntityMapping, error) {
	return l.Get(ctx, model.MappingID(source, kind, naturalKey))
}

// Ensure inserts a pending entry for the mapping if none exists and
// returns the authoritative row. An existing entry keeps its stage and
// store references; only a previously unknown sample back-reference is
// filled in. Re-ingesting the same external record therefore resumes
// from wherever the earlier run left the entry.
func (l *Ledger) Ensure(ctx context.Context, m *model.EntityMapping) (*model.EntityMapping, error) {
	row := l.pool.QueryRow(ctx,
		`INSERT INTO omics.entity_mapping AS em
		   (mapping_id, source, kind, natural_key, sample_key, integration_type, last_stage, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, now())
		 ON CONFLICT (mapping_id) DO UPDATE
		   SET sample_key = COALESCE(em.sample_key, EXCLUDED.sample_key)
		 RETURNING `+mappingColumns,
		m.MappingID, m.Source, string(m.Kind), m.NaturalKey,
		m.SampleKey, string(m.IntegrationType), string(m.LastStage),
	)
	out, err := scanMapping(row)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: ensure %s", m.MappingID)
	}
	return out, nil
}

// SetStage advances the entry to the given stage with an optimistic
// check on updated_at. On success m reflects the new stage and
// timestamp; ErrStaleEntry means a concurrent run changed the entry
// first.
func (l *Ledger) SetStage(ctx context.Context, m *model.EntityMapping, stage model.Stage, errorReason string) error {
	var updatedAt time.Time
	err := l.pool.QueryRow(ctx,
		`UPDATE omics.entity_mapping
		 SET last_stage = $1, error_reason = NULLIF($2, ''), updated_at = now()
		 WHERE mapping_id = $3 AND updated_at = $4
		 RETURNING updated_at`,
		string(stage), errorReason, m.MappingID, m.UpdatedAt,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleEntry
		}
		return eris.Wrapf(err, "ledger: set stage %s for %s", stage, m.MappingID)
	}
	m.LastStage = stage
	m.ErrorReason = errorReason
	m.UpdatedAt = updatedAt
	return nil
}

// MarkLoaded records the store reference and advances the entry to
// loaded in one write, with the same optimistic check as SetStage.
func (l *Ledger) MarkLoaded(ctx context.Context, m *model.EntityMapping, rel *model.RelationalRef, doc *model.DocumentRef) error {
	var relTable, relKey, docCollection, docKey *string
	if rel != nil {
		relTable, relKey = &rel.Table, &rel.Key
	}
	if doc != nil {
		docCollection, docKey = &doc.Collection, &doc.Key
	}

	var updatedAt time.Time
	err := l.pool.QueryRow(ctx,
		`UPDATE omics.entity_mapping
		 SET last_stage = $1, rel_table = $2, rel_key = $3,
		     doc_collection = $4, doc_key = $5,
		     error_reason = NULL, updated_at = now()
		 WHERE mapping_id = $6 AND updated_at = $7
		 RETURNING updated_at`,
		string(model.StageLoaded), relTable, relKey, docCollection, docKey,
		m.MappingID, m.UpdatedAt,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleEntry
		}
		return eris.Wrapf(err, "ledger: mark loaded %s", m.MappingID)
	}
	m.LastStage = model.StageLoaded
	m.RelationalRef = rel
	m.DocumentRef = doc
	m.ErrorReason = ""
	m.UpdatedAt = updatedAt
	return nil
}

// ListByStage returns entries at the given stage, oldest first. An
// empty source matches all sources.
func (l *Ledger) ListByStage(ctx context.Context, source string, stage model.Stage) ([]model.EntityMapping, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+mappingColumns+` FROM omics.entity_mapping
		 WHERE last_stage = $1 AND ($2 = '' OR source = $2)
		 ORDER BY updated_at ASC`,
		string(stage), source,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: list stage %s", stage)
	}
	defer rows.Close()

	var out []model.EntityMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, eris.Wrap(err, "ledger: scan entry")
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Quarantined returns entries parked for manual review.
func (l *Ledger) Quarantined(ctx context.Context, source string) ([]model.EntityMapping, error) {
	return l.ListByStage(ctx, source, model.StageQuarantined)
}

// CountByStage returns the number of entries per stage for a source
// (all sources when empty).
func (l *Ledger) CountByStage(ctx context.Context, source string) (map[model.Stage]int, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT last_stage, count(*) FROM omics.entity_mapping
		 WHERE ($1 = '' OR source = $1)
		 GROUP BY last_stage`,
		source,
	)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: count by stage")
	}
	defer rows.Close()

	counts := make(map[model.Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "ledger: scan stage count")
		}
		counts[model.Stage(stage)] = n
	}
	return counts, rows.Err()
}

// scanMapping reads one entity_mapping row in mappingColumns order.
func scanMapping(row pgx.Row) (*model.EntityMapping, error) {
	var m model.EntityMapping
	var kind, integrationType, lastStage string
	var relTable, relKey, docCollection, docKey, sampleKey, errorReason *string

	err := row.Scan(
		&m.MappingID, &m.Source, &kind, &m.NaturalKey,
		&relTable, &relKey, &docCollection, &docKey, &sampleKey,
		&integrationType, &lastStage, &errorReason, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Kind = model.RecordKind(kind)
	m.IntegrationType = model.IntegrationType(integrationType)
	m.LastStage = model.Stage(lastStage)
	if relTable != nil && relKey != nil {
		m.RelationalRef = &model.RelationalRef{Table: *relTable, Key: *relKey}
	}
	if docCollection != nil && docKey != nil {
		m.DocumentRef = &model.DocumentRef{Collection: *docCollection, Key: *docKey}
	}
	if sampleKey != nil {
		m.SampleKey = *sampleKey
	}
	if errorReason != nil {
		m.ErrorReason = *errorReason
	}
	return &m, nil
}
