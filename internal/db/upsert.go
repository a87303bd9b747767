package db

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertRow performs an insert-or-update keyed by natural key and
// reports whether the write was an insert. The inserted flag feeds run
// metrics only; correctness relies solely on the upsert being
// idempotent for the same key.
//
// Field map iteration order is stabilized by sorting column names so the
// generated SQL is deterministic (and mockable in tests).
func UpsertRow(ctx context.Context, pool Pool, table, keyCol, key string, fields map[string]any) (inserted bool, err error) {
	cols := make([]string, 0, len(fields)+1)
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	colNames := []string{pgx.Identifier{keyCol}.Sanitize()}
	placeholders := []string{"$1"}
	args := []any{key}
	var setClauses []string

	for i, c := range cols {
		colNames = append(colNames, pgx.Identifier{c}.Sanitize())
		ph := fmt.Sprintf("$%d", i+2)
		placeholders = append(placeholders, ph)
		args = append(args, fields[c])
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s",
			pgx.Identifier{c}.Sanitize(), pgx.Identifier{c}.Sanitize()))
	}

	return execUpsert(ctx, pool, table, keyCol, colNames, placeholders, args, setClauses)
}

// UpsertRowAdditive performs the same keyed insert-or-update as
// UpsertRow but enriches on conflict instead of overwriting: typed
// columns keep their existing non-null value, and an "attributes" JSONB
// column is unioned with existing keys winning (null-valued keys count
// as absent so enrichment can fill them in). Columns listed in fresh
// still take the incoming value; bookkeeping fields like updated_at
// belong there.
func UpsertRowAdditive(ctx context.Context, pool Pool, table, keyCol, key string, fields map[string]any, fresh map[string]bool) (inserted bool, err error) {
	cols := make([]string, 0, len(fields)+1)
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	self := conflictAlias(table)
	colNames := []string{pgx.Identifier{keyCol}.Sanitize()}
	placeholders := []string{"$1"}
	args := []any{key}
	var setClauses []string

	for i, c := range cols {
		sc := pgx.Identifier{c}.Sanitize()
		colNames = append(colNames, sc)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, fields[c])

		switch {
		case fresh[c]:
			setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", sc, sc))
		case c == "attributes":
			setClauses = append(setClauses, fmt.Sprintf(
				"%s = coalesce(EXCLUDED.%s, '{}'::jsonb) || jsonb_strip_nulls(coalesce(%s.%s, '{}'::jsonb))",
				sc, sc, self, sc))
		default:
			setClauses = append(setClauses, fmt.Sprintf("%s = COALESCE(%s.%s, EXCLUDED.%s)", sc, self, sc, sc))
		}
	}

	return execUpsert(ctx, pool, table, keyCol, colNames, placeholders, args, setClauses)
}

func execUpsert(ctx context.Context, pool Pool, table, keyCol string, colNames, placeholders []string, args []any, setClauses []string) (inserted bool, err error) {
	// A no-op key self-assignment keeps RETURNING populated when the
	// record carries no non-key fields; DO NOTHING would return no row.
	if len(setClauses) == 0 {
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s",
			pgx.Identifier{keyCol}.Sanitize(), pgx.Identifier{keyCol}.Sanitize()))
	}
	conflictAction := "DO UPDATE SET " + strings.Join(setClauses, ", ")

	// xmax = 0 only for freshly inserted rows.
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s RETURNING (xmax = 0) AS inserted",
		SanitizeTable(table),
		strings.Join(colNames, ", "),
		strings.Join(placeholders, ", "),
		pgx.Identifier{keyCol}.Sanitize(),
		conflictAction,
	)

	if err := pool.QueryRow(ctx, sql, args...).Scan(&inserted); err != nil {
		return false, eris.Wrapf(err, "db: upsert into %s", table)
	}
	return inserted, nil
}

// conflictAlias returns the identifier the conflict action uses to
// reference the existing row: the table name without its schema.
func conflictAlias(table string) string {
	parts := strings.SplitN(table, ".", 2)
	return pgx.Identifier{parts[len(parts)-1]}.Sanitize()
}

// SanitizeTable handles schema-qualified table names like
// "omics.expression_data".
func SanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}
