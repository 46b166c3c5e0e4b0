package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const getKvEntry = `-- name: GetKvEntry :one
SELECT key, value, updated_at
FROM kv_entries
WHERE key = $1
`

func (q *Queries) GetKvEntry(ctx context.Context, key string) (KvEntry, error) {
	row := q.db.QueryRow(ctx, getKvEntry, key)
	var i KvEntry
	err := row.Scan(&i.Key, &i.Value, &i.UpdatedAt)
	return i, err
}

const upsertKvEntry = `-- name: UpsertKvEntry :exec
INSERT INTO kv_entries (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value,
    updated_at = EXCLUDED.updated_at
`

type UpsertKvEntryParams struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

func (q *Queries) UpsertKvEntry(ctx context.Context, arg UpsertKvEntryParams) error {
	_, err := q.db.Exec(ctx, upsertKvEntry, arg.Key, arg.Value, arg.UpdatedAt)
	return err
}

const listKvKeysByPrefix = `-- name: ListKvKeysByPrefix :many
SELECT key
FROM kv_entries
WHERE starts_with(key, $1)
ORDER BY key ASC
`

func (q *Queries) ListKvKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := q.db.Query(ctx, listKvKeysByPrefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		items = append(items, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
