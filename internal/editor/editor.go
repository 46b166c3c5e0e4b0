// Package editor composes the map editing state of one workspace: the working
// and saved topology stores, the selection, the polygon draft and the edit
// flags. Every exported operation takes the session lock and either commits in
// full or leaves the state untouched.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/polydraw"
	"fibermap/core-go/internal/selection"
	"fibermap/core-go/internal/snapping"
	"fibermap/core-go/internal/splitter"
	"fibermap/core-go/internal/topology"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrSavedReadOnly    = errors.New("saved routes are not editable")
	ErrPolygonLocked    = errors.New("polygon is locked")
	ErrFeatureDisabled  = errors.New("feature disabled")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrMissingSelection = errors.New("selection does not fit the action")
	ErrWaypointOccupied = errors.New("waypoint already carries an icon")
)

// Scope picks the store an operation acts on.
type Scope string

const (
	ScopeWorking Scope = "working"
	ScopeSaved   Scope = "saved"
)

func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScopeWorking:
		return ScopeWorking, nil
	case ScopeSaved:
		return ScopeSaved, nil
	}
	return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidArgument, raw)
}

// Features switches optional editing rules on or off.
type Features struct {
	RatioLimits bool `json:"ratioLimits"`
	LineNaming  bool `json:"lineNaming"`
	Polygons    bool `json:"polygons"`
}

func AllFeatures() Features {
	return Features{RatioLimits: true, LineNaming: true, Polygons: true}
}

// Change describes one committed mutation.
type Change struct {
	Type     string    `json:"type"`
	Scope    Scope     `json:"scope,omitempty"`
	EntityID string    `json:"entityId,omitempty"`
	At       time.Time `json:"at"`
}

// Persister is the storage surface the editor needs. *storage.Bridge satisfies it.
type Persister interface {
	LoadAll(ctx context.Context) (*topology.Store, bool, error)
	SaveAll(ctx context.Context, saved, working *topology.Store) (int, error)
	WriteTopology(ctx context.Context, s *topology.Store) error
	WritePolygons(ctx context.Context, polygons []topology.Polygon) error
}

type Options struct {
	Features           Features
	SnapRadiusMeters   float64
	PolygonCloseMeters float64
	// Now defaults to time.Now. The editor makes it strictly increasing.
	Now func() time.Time
	// OnChange is called with the lock held; it must not call back into the editor.
	OnChange func(Change)
}

type Editor struct {
	mu       sync.Mutex
	log      zerolog.Logger
	persist  Persister
	metrics  *metrics.Metrics
	features Features
	snap     float64
	onChange func(Change)
	clock    clock

	working   *topology.Store
	saved     *topology.Store
	polygons  []topology.Polygon
	selection selection.Machine
	draft     polydraw.Draft
	flags     selection.Flags
}

// New loads the saved topology and polygons through p and returns an editor
// with an empty working store.
func New(ctx context.Context, log zerolog.Logger, p Persister, opts Options, m *metrics.Metrics) (*Editor, error) {
	snap := opts.SnapRadiusMeters
	if snap <= 0 {
		snap = snapping.DefaultRadiusMeters
	}
	closeMeters := opts.PolygonCloseMeters
	if closeMeters <= 0 {
		closeMeters = polydraw.DefaultCloseMeters
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Editor{
		log:      log,
		persist:  p,
		metrics:  m,
		features: opts.Features,
		snap:     snap,
		onChange: opts.OnChange,
		clock:    clock{now: now},
		working:  topology.NewStore(),
		draft:    polydraw.Draft{CloseMeters: closeMeters},
	}

	loaded, legacy, err := p.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load saved topology: %w", err)
	}
	e.polygons = loaded.Polygons
	loaded.Polygons = nil
	if legacy {
		n := loaded.Relink(snapping.NewResolver(loaded.Icons, snap).Finder())
		loaded.Normalize()
		e.log.Info().Int("attached", n).Msg("relinked legacy topology")
	}
	for i := range loaded.Icons {
		if loaded.Icons[i].IsSplitter() {
			splitter.RestoreCounter(&loaded.Icons[i], loaded.Lines)
		}
	}
	if err := loaded.Check(); err != nil {
		e.log.Warn().Err(err).Msg("saved topology failed integrity check")
	}
	e.saved = loaded
	for _, l := range loaded.Lines {
		e.clock.observe(l.CreatedAt)
	}
	return e, nil
}

func (e *Editor) store(scope Scope) *topology.Store {
	if scope == ScopeSaved {
		return e.saved
	}
	return e.working
}

// mutate runs fn against a copy of the scope's store and commits the copy only
// when fn succeeds and, for the saved scope, the write to storage succeeds.
func (e *Editor) mutate(ctx context.Context, scope Scope, op string, fn func(s *topology.Store) (string, error)) error {
	if scope == ScopeSaved && !e.flags.SavedEditable {
		e.observe(op, ErrSavedReadOnly)
		return ErrSavedReadOnly
	}
	next := e.store(scope).Clone()
	id, err := fn(next)
	if err != nil {
		e.observe(op, err)
		return err
	}
	next.Normalize()
	if scope == ScopeSaved {
		if err := e.persist.WriteTopology(ctx, next); err != nil {
			err = fmt.Errorf("persist saved topology: %w", err)
			e.observe(op, err)
			return err
		}
		e.saved = next
	} else {
		e.working = next
	}
	e.observe(op, nil)
	e.emit(op, scope, id)
	return nil
}

func (e *Editor) observe(op string, err error) {
	result := "ok"
	var limit *splitter.LimitExceededError
	switch {
	case err == nil:
	case errors.As(err, &limit):
		result = "rejected"
		e.metrics.IncSplitterRejection()
	case isClientError(err):
		result = "rejected"
	default:
		result = "error"
		e.log.Error().Err(err).Str("op", op).Msg("editor operation failed")
	}
	e.metrics.ObserveEditorOperation(op, result)
}

func isClientError(err error) bool {
	var tooLow *splitter.RatioTooLowError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSavedReadOnly) ||
		errors.Is(err, ErrPolygonLocked) ||
		errors.Is(err, ErrFeatureDisabled) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrWaypointOccupied) ||
		errors.Is(err, splitter.ErrInvalidRatio) ||
		errors.Is(err, splitter.ErrNotSplitter) ||
		errors.As(err, &tooLow)
}

func (e *Editor) emit(op string, scope Scope, id string) {
	if e.onChange == nil {
		return
	}
	e.onChange(Change{Type: op, Scope: scope, EntityID: id, At: e.clock.Now()})
}

// Flags returns the current edit flags.
func (e *Editor) Flags() selection.Flags {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags
}

// SetFlags updates the flags that are non-nil. The two flags are independent.
func (e *Editor) SetFlags(showSaved, savedEditable *bool) selection.Flags {
	e.mu.Lock()
	defer e.mu.Unlock()
	if showSaved != nil {
		e.flags.ShowSaved = *showSaved
	}
	if savedEditable != nil {
		e.flags.SavedEditable = *savedEditable
	}
	if s := e.selection.State(); s.Saved && !e.flags.ShowSaved {
		e.selection.Clear()
	}
	e.emit("flags.update", "", "")
	return e.flags
}

func (e *Editor) Features() Features {
	return e.features
}

// clock hands out strictly increasing UTC timestamps.
type clock struct {
	now  func() time.Time
	last time.Time
}

func (c *clock) Now() time.Time {
	t := c.now().UTC().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

func (c *clock) observe(t time.Time) {
	if t.After(c.last) {
		c.last = t
	}
}
