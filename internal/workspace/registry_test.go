package workspace

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fibermap/core-go/internal/editor"
	"fibermap/core-go/internal/events"
	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newRegistry(kv storage.KV, pub events.Publisher, clk *fakeClock) *Registry {
	return NewRegistry(zerolog.New(io.Discard), kv, pub, Options{
		Editor:  editor.Options{Features: editor.AllFeatures()},
		IdleTTL: 10 * time.Minute,
		Now:     clk.Now,
	}, nil)
}

func TestRegistry_GetReturnsSameEditor(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(storage.NewMemory(), nil, &fakeClock{t: time.Now()})

	a, err := r.Get(ctx, "north")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := r.Get(ctx, "north")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Fatalf("expected the same editor for the same workspace")
	}
	if _, err := r.Get(ctx, "bad id!"); !errors.Is(err, ErrInvalidWorkspace) {
		t.Fatalf("expected ErrInvalidWorkspace, got %v", err)
	}
}

func TestRegistry_PublishesWithWorkspace(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	r := newRegistry(storage.NewMemory(), pub, &fakeClock{t: time.Now()})

	ed, err := r.Get(ctx, "north")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	l, err := ed.CreateLine(ctx, editor.ScopeWorking, geo.Point{Lat: 45, Lng: 7}, nil)
	if err != nil {
		t.Fatalf("CreateLine: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Workspace != "north" || ev.Type != "line.create" || ev.EntityID != l.ID || ev.Scope != "working" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRegistry_EvictsIdleAndReloadsSaved(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	r := newRegistry(storage.NewMemory(), nil, clk)

	ed, _ := r.Get(ctx, "north")
	if _, err := ed.CreateLine(ctx, editor.ScopeWorking, geo.Point{Lat: 45, Lng: 7}, nil); err != nil {
		t.Fatalf("CreateLine: %v", err)
	}
	if _, err := ed.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, _ = r.Get(ctx, "south")

	clk.t = clk.t.Add(6 * time.Minute)
	_, _ = r.Get(ctx, "south")
	clk.t = clk.t.Add(6 * time.Minute)

	if n := r.Evict(); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if got := r.Active(); len(got) != 1 || got[0] != "south" {
		t.Fatalf("expected only south to stay active, got %v", got)
	}

	reloaded, err := r.Get(ctx, "north")
	if err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if reloaded == ed {
		t.Fatalf("expected a fresh editor after eviction")
	}
	show := true
	reloaded.SetFlags(&show, nil)
	if v := reloaded.Snapshot(); v.Saved == nil || len(v.Saved.Lines) != 1 {
		t.Fatalf("expected saved line to survive eviction, got %+v", v.Saved)
	}
}

func TestRegistry_KnownIncludesStoredWorkspaces(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	_ = kv.Set(ctx, "east:savedPolylines", `{"version":1,"items":[]}`)
	_ = kv.Set(ctx, "east:unrelated", "x")
	_ = kv.Set(ctx, "noprefix", "x")
	r := newRegistry(kv, nil, &fakeClock{t: time.Now()})
	_, _ = r.Get(ctx, "west")

	got, err := r.Known(ctx)
	if err != nil {
		t.Fatalf("Known: %v", err)
	}
	if len(got) != 2 || got[0] != "east" || got[1] != "west" {
		t.Fatalf("expected [east west], got %v", got)
	}
}

type failingPinger struct {
	*storage.Memory
	err error
}

func (f *failingPinger) Ping(context.Context) error { return f.err }

func TestJanitor_RunOnceReportsPingFailure(t *testing.T) {
	kv := &failingPinger{Memory: storage.NewMemory(), err: errors.New("db down")}
	r := newRegistry(kv, nil, &fakeClock{t: time.Now()})
	j := NewJanitor(zerolog.New(io.Discard), r, time.Second)

	if err := j.runOnce(context.Background()); err == nil {
		t.Fatalf("expected ping failure to surface")
	}
	kv.err = nil
	if err := j.runOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	r := newRegistry(storage.NewMemory(), nil, &fakeClock{t: time.Now()})
	j := NewJanitor(zerolog.New(io.Discard), r, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not stop")
	}
}

func TestBackoffDuration(t *testing.T) {
	if got := backoffDuration(time.Minute, 0); got != time.Minute {
		t.Fatalf("expected base, got %s", got)
	}
	if got := backoffDuration(time.Minute, 2); got != 4*time.Minute {
		t.Fatalf("expected 4m, got %s", got)
	}
	if got := backoffDuration(time.Minute, 20); got != 15*time.Minute {
		t.Fatalf("expected cap, got %s", got)
	}
}

// gatedKV blocks reads of keys under gatedPrefix until release is closed and
// counts them.
type gatedKV struct {
	*storage.Memory
	gatedPrefix string
	entered     chan struct{}
	release     chan struct{}

	once  sync.Once
	mu    sync.Mutex
	reads int
}

func (k *gatedKV) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.HasPrefix(key, k.gatedPrefix) {
		k.mu.Lock()
		k.reads++
		k.mu.Unlock()
		k.once.Do(func() { close(k.entered) })
		<-k.release
	}
	return k.Memory.Get(ctx, key)
}

func TestRegistry_SlowLoadDoesNotBlockOtherWorkspaces(t *testing.T) {
	ctx := context.Background()
	kv := &gatedKV{
		Memory:      storage.NewMemory(),
		gatedPrefix: "slow:",
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	r := newRegistry(kv, nil, &fakeClock{t: time.Now()})

	type result struct {
		ed  *editor.Editor
		err error
	}
	slow := make(chan result, 2)
	for range 2 {
		go func() {
			ed, err := r.Get(ctx, "slow")
			slow <- result{ed, err}
		}()
	}
	<-kv.entered

	fastCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := r.Get(fastCtx, "fast"); err != nil {
		t.Fatalf("expected another workspace to load while one is slow, got %v", err)
	}
	if got := r.Active(); len(got) != 1 || got[0] != "fast" {
		t.Fatalf("expected only the loaded workspace to be active, got %v", got)
	}

	close(kv.release)
	a, b := <-slow, <-slow
	if a.err != nil || b.err != nil {
		t.Fatalf("slow loads failed: %v, %v", a.err, b.err)
	}
	if a.ed != b.ed {
		t.Fatalf("expected concurrent callers to share one editor")
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.reads != 3 {
		t.Fatalf("expected one load (3 reads), got %d reads", kv.reads)
	}
}

func TestRegistry_FailedLoadIsRetried(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: storage.NewMemory(), fail: true}
	r := newRegistry(kv, nil, &fakeClock{t: time.Now()})

	if _, err := r.Get(ctx, "north"); err == nil {
		t.Fatalf("expected load error")
	}
	kv.fail = false
	if _, err := r.Get(ctx, "north"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

type flakyKV struct {
	*storage.Memory
	fail bool
}

func (k *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if k.fail {
		return "", false, errors.New("connection refused")
	}
	return k.Memory.Get(ctx, key)
}
