// Package workspace holds one editor per workspace, loading it from storage on
// first use and dropping it again once it has been idle for a while.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fibermap/core-go/internal/editor"
	"fibermap/core-go/internal/events"
	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/naming"
	"fibermap/core-go/internal/storage"
)

var ErrInvalidWorkspace = errors.New("invalid workspace id")

// entry is one workspace. ready is closed once the load finished; editor and
// err are set before that and never change afterwards.
type entry struct {
	ready    chan struct{}
	editor   *editor.Editor
	err      error
	lastUsed time.Time
}

type Options struct {
	Editor  editor.Options
	IdleTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type Registry struct {
	log       zerolog.Logger
	kv        storage.KV
	publisher events.Publisher
	metrics   *metrics.Metrics
	opts      editor.Options
	idleTTL   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(log zerolog.Logger, kv storage.KV, pub events.Publisher, opts Options, m *metrics.Metrics) *Registry {
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if pub == nil {
		pub = events.Discard{}
	}
	return &Registry{
		log:       log,
		kv:        kv,
		publisher: pub,
		metrics:   m,
		opts:      opts.Editor,
		idleTTL:   ttl,
		now:       now,
		entries:   make(map[string]*entry),
	}
}

// Get returns the editor of workspace id, loading it from storage if needed.
// Loads run outside the registry lock; concurrent callers for the same id
// share one load.
func (r *Registry) Get(ctx context.Context, id string) (*editor.Editor, error) {
	if !naming.ValidWorkspaceID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWorkspace, id)
	}

	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.editor, nil
	}
	e := &entry{ready: make(chan struct{}), lastUsed: r.now()}
	r.entries[id] = e
	r.mu.Unlock()

	ed, err := r.load(ctx, id)

	r.mu.Lock()
	if err != nil {
		e.err = err
		delete(r.entries, id)
	} else {
		e.editor = ed
		e.lastUsed = r.now()
	}
	r.metrics.SetActiveWorkspaces(len(r.entries))
	r.mu.Unlock()
	close(e.ready)

	if err != nil {
		return nil, err
	}
	return ed, nil
}

func (r *Registry) load(ctx context.Context, id string) (*editor.Editor, error) {
	opts := r.opts
	opts.OnChange = func(c editor.Change) {
		r.publisher.Publish(events.Event{
			Type:      c.Type,
			Workspace: id,
			Scope:     string(c.Scope),
			EntityID:  c.EntityID,
			At:        c.At,
		})
	}
	log := r.log.With().Str("workspace", id).Logger()
	ed, err := editor.New(ctx, log, storage.NewBridge(r.kv, id, log), opts, r.metrics)
	if err != nil {
		return nil, fmt.Errorf("open workspace %s: %w", id, err)
	}
	log.Info().Msg("workspace loaded")
	return ed, nil
}

// Active returns the ids of the workspaces loaded in memory.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.editor != nil {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Known returns every workspace that is in memory or has data in storage.
func (r *Registry) Known(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, id := range r.Active() {
		seen[id] = struct{}{}
	}
	if l, ok := r.kv.(storage.Lister); ok {
		keys, err := l.Keys(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list stored workspaces: %w", err)
		}
		for _, k := range keys {
			ns, name, ok := strings.Cut(k, ":")
			if !ok || !naming.ValidWorkspaceID(ns) {
				continue
			}
			switch name {
			case storage.KeyLines, storage.KeyIcons, storage.KeyPolygons:
				seen[ns] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Evict drops workspaces idle for longer than the TTL. Their saved state is
// already in storage; unsaved working edits are lost.
func (r *Registry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	var n int
	for id, e := range r.entries {
		if e.editor != nil && e.lastUsed.Before(cutoff) {
			delete(r.entries, id)
			n++
			r.log.Info().Str("workspace", id).Msg("workspace evicted after idle timeout")
		}
	}
	r.metrics.SetActiveWorkspaces(len(r.entries))
	return n
}

// Ping checks the storage backend when it supports it.
func (r *Registry) Ping(ctx context.Context) error {
	if p, ok := r.kv.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
