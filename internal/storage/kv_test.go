package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"fibermap/core-go/internal/sqlcgen"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, "ws1:savedIcons", "[]"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, "ws1:savedIcons", `{"version":1}`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_ = kv.Set(ctx, "ws2:polygons", "[]")

	v, ok, err := kv.Get(ctx, "ws1:savedIcons")
	if err != nil || !ok || v != `{"version":1}` {
		t.Fatalf("expected overwritten value, got %q ok=%v err=%v", v, ok, err)
	}

	if l, isLister := kv.(Lister); isLister {
		keys, err := l.Keys(ctx, "ws1:")
		if err != nil {
			t.Fatalf("keys: %v", err)
		}
		if len(keys) != 1 || keys[0] != "ws1:savedIcons" {
			t.Fatalf("unexpected keys %v", keys)
		}
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestSQLiteKV(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "fibermap.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	kv, err := NewSQLite(context.Background(), db)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseKV(t, kv)
	if err := kv.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

type fakePostgresQueries struct {
	rows map[string]sqlcgen.KvEntry
}

func (f *fakePostgresQueries) GetKvEntry(_ context.Context, key string) (sqlcgen.KvEntry, error) {
	row, ok := f.rows[key]
	if !ok {
		return sqlcgen.KvEntry{}, pgx.ErrNoRows
	}
	return row, nil
}

func (f *fakePostgresQueries) UpsertKvEntry(_ context.Context, arg sqlcgen.UpsertKvEntryParams) error {
	f.rows[arg.Key] = sqlcgen.KvEntry{Key: arg.Key, Value: arg.Value, UpdatedAt: arg.UpdatedAt}
	return nil
}

func (f *fakePostgresQueries) ListKvKeysByPrefix(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range f.rows {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func TestPostgresKV(t *testing.T) {
	q := &fakePostgresQueries{rows: map[string]sqlcgen.KvEntry{}}
	kv := NewPostgres(q)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	kv.now = func() time.Time { return fixed }

	exerciseKV(t, kv)
	if got := q.rows["ws1:savedIcons"].UpdatedAt; !got.Equal(fixed) {
		t.Fatalf("expected updated_at from clock, got %v", got)
	}
}

type brokenPostgresQueries struct{ fakePostgresQueries }

func (brokenPostgresQueries) GetKvEntry(context.Context, string) (sqlcgen.KvEntry, error) {
	return sqlcgen.KvEntry{}, errors.New("connection reset")
}

func TestPostgresKV_PropagatesErrors(t *testing.T) {
	kv := NewPostgres(&brokenPostgresQueries{})
	if _, _, err := kv.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected query error to propagate")
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPostgresKV_Ping(t *testing.T) {
	kv := NewPostgres(&fakePostgresQueries{})
	if err := kv.Ping(context.Background()); err != nil {
		t.Fatalf("expected nil ping without a pinger, got %v", err)
	}

	kv.WithPinger(pingFunc(func(context.Context) error { return errors.New("down") }))
	if err := kv.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error from pool")
	}
}
