package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"fibermap/core-go/internal/splitter"
	"fibermap/core-go/internal/topology"
)

const (
	KeyLines    = "savedPolylines"
	KeyIcons    = "savedIcons"
	KeyPolygons = "polygons"

	// SchemaVersion is written into every blob.
	SchemaVersion = 1
)

// emptyBlob loads the same as a missing key.
var emptyBlob = fmt.Sprintf(`{"version":%d,"items":[]}`, SchemaVersion)

type envelope[T any] struct {
	Version int `json:"version"`
	Items   []T `json:"items"`
}

// Bridge reads and writes one workspace's collections.
type Bridge struct {
	kv        KV
	namespace string
	log       zerolog.Logger
}

func NewBridge(kv KV, namespace string, log zerolog.Logger) *Bridge {
	return &Bridge{kv: kv, namespace: namespace, log: log}
}

func (b *Bridge) key(name string) string {
	if b.namespace == "" {
		return name
	}
	return b.namespace + ":" + name
}

// LoadAll returns the saved lines and icons and the polygons. Missing keys give
// empty collections; malformed blobs are logged and treated as empty. Only a
// failing KV returns an error. legacy is true when any blob predates the
// versioned format, in which case vertices carry no icon ids yet.
func (b *Bridge) LoadAll(ctx context.Context) (s *topology.Store, legacy bool, err error) {
	linesRaw, err := b.get(ctx, KeyLines)
	if err != nil {
		return nil, false, err
	}
	iconsRaw, err := b.get(ctx, KeyIcons)
	if err != nil {
		return nil, false, err
	}
	polygonsRaw, err := b.get(ctx, KeyPolygons)
	if err != nil {
		return nil, false, err
	}

	s = topology.NewStore()
	if isLegacy(linesRaw) {
		legacy = true
		s.Lines = decodeLegacy(b, KeyLines, linesRaw, decodeLegacyLines)
	} else {
		s.Lines = decodeItems[topology.Line](b, KeyLines, linesRaw)
	}
	if isLegacy(iconsRaw) {
		legacy = true
		s.Icons = decodeLegacy(b, KeyIcons, iconsRaw, func(raw []byte) ([]topology.Icon, error) {
			return decodeLegacyIcons(raw, s.Lines)
		})
	} else {
		s.Icons = decodeItems[topology.Icon](b, KeyIcons, iconsRaw)
	}
	if isLegacy(polygonsRaw) {
		s.Polygons = decodeLegacy(b, KeyPolygons, polygonsRaw, decodeLegacyPolygons)
	} else {
		s.Polygons = decodeItems[topology.Polygon](b, KeyPolygons, polygonsRaw)
	}

	s.Normalize()
	return s, legacy, nil
}

// SaveAll merges working into saved by id and writes the saved lines and icons.
// Splitter counters are carried forward so merged names are never handed out
// again.
func (b *Bridge) SaveAll(ctx context.Context, saved, working *topology.Store) (added int, err error) {
	added = saved.MergeFrom(working)
	splitter.ReconcileCounters(saved, working)
	saved.Normalize()
	for _, st := range splitter.OverLimit(saved) {
		b.log.Warn().
			Str("splitter", st.IconID).
			Str("ratio", st.Ratio).
			Int("connected", st.Connected).
			Msg("saved splitter has more lines than its ratio allows")
	}
	if err := saved.Check(); err != nil {
		b.log.Warn().Err(err).Msg("merged topology failed integrity check")
	}
	if err := b.WriteTopology(ctx, saved); err != nil {
		return added, err
	}
	return added, nil
}

// WriteTopology writes the icons of s, then its lines. When the lines write
// fails the previous icons blob is put back, so storage keeps the old pair.
func (b *Bridge) WriteTopology(ctx context.Context, s *topology.Store) error {
	prevIcons, hadIcons, err := b.kv.Get(ctx, b.key(KeyIcons))
	if err != nil {
		return fmt.Errorf("read %s: %w", KeyIcons, err)
	}
	if err := put(ctx, b, KeyIcons, s.Icons); err != nil {
		return err
	}
	if err := put(ctx, b, KeyLines, s.Lines); err != nil {
		if !hadIcons {
			prevIcons = emptyBlob
		}
		if rerr := b.kv.Set(ctx, b.key(KeyIcons), prevIcons); rerr != nil {
			b.log.Error().Err(rerr).Str("key", b.key(KeyIcons)).Msg("failed to restore icons after lines write failed")
		}
		return err
	}
	return nil
}

func (b *Bridge) WritePolygons(ctx context.Context, polygons []topology.Polygon) error {
	return put(ctx, b, KeyPolygons, polygons)
}

func (b *Bridge) get(ctx context.Context, name string) ([]byte, error) {
	v, ok, err := b.kv.Get(ctx, b.key(name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	return bytes.TrimSpace([]byte(v)), nil
}

func put[T any](ctx context.Context, b *Bridge, name string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(envelope[T]{Version: SchemaVersion, Items: items})
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := b.kv.Set(ctx, b.key(name), string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func decodeItems[T any](b *Bridge, name string, raw []byte) []T {
	out := []T{}
	if len(raw) == 0 {
		return out
	}
	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		b.log.Warn().Err(err).Str("key", b.key(name)).Msg("stored blob is malformed; starting empty")
		return out
	}
	if env.Version > SchemaVersion {
		b.log.Warn().Int("version", env.Version).Str("key", b.key(name)).Msg("stored blob is newer than this build")
	}
	if env.Items != nil {
		out = env.Items
	}
	return out
}

func decodeLegacy[T any](b *Bridge, name string, raw []byte, decode func([]byte) ([]T, error)) []T {
	items, err := decode(raw)
	if err != nil {
		b.log.Warn().Err(err).Str("key", b.key(name)).Msg("legacy blob is malformed; starting empty")
		return []T{}
	}
	return items
}

func isLegacy(raw []byte) bool {
	return len(raw) > 0 && raw[0] == '['
}
