package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"fibermap/core-go/internal/sqlcgen"
)

// PostgresQueries is the slice of sqlcgen the Postgres KV needs.
type PostgresQueries interface {
	GetKvEntry(ctx context.Context, key string) (sqlcgen.KvEntry, error)
	UpsertKvEntry(ctx context.Context, arg sqlcgen.UpsertKvEntryParams) error
	ListKvKeysByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Postgres keeps blobs in the kv_entries table.
type Postgres struct {
	q      PostgresQueries
	pinger Pinger
	now    func() time.Time
}

func NewPostgres(q PostgresQueries) *Postgres {
	return &Postgres{q: q, now: time.Now}
}

// WithPinger attaches the connection check used by /readyz.
func (p *Postgres) WithPinger(pinger Pinger) *Postgres {
	p.pinger = pinger
	return p
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p.pinger == nil {
		return nil
	}
	return p.pinger.Ping(ctx)
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	row, err := p.q.GetKvEntry(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	return p.q.UpsertKvEntry(ctx, sqlcgen.UpsertKvEntryParams{
		Key:       key,
		Value:     value,
		UpdatedAt: p.now().UTC(),
	})
}

func (p *Postgres) Keys(ctx context.Context, prefix string) ([]string, error) {
	return p.q.ListKvKeysByPrefix(ctx, prefix)
}
