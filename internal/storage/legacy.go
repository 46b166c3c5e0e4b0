package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/topology"
)

// Blobs written before the versioned envelope are bare arrays. Timestamps may be
// epoch milliseconds, ids may be missing on waypoints, and icon links point at
// line and waypoint positions instead of ids.

type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = flexTime(time.Time{})
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*t = flexTime(time.Time{})
			return nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*t = flexTime(ts)
			return nil
		}
		b = []byte(s)
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %s", string(b))
	}
	*t = flexTime(time.UnixMilli(int64(ms)).UTC())
	return nil
}

type legacyWaypoint struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type legacyLine struct {
	ID          string           `json:"id"`
	From        geo.Point        `json:"from"`
	To          geo.Point        `json:"to"`
	Waypoints   []legacyWaypoint `json:"waypoints"`
	Name        string           `json:"name"`
	CreatedAt   flexTime         `json:"createdAt"`
	StrokeColor string           `json:"strokeColor"`
}

type legacyLink struct {
	LineIndex     *int `json:"lineIndex"`
	WaypointIndex *int `json:"waypointIndex"`
}

type legacyIcon struct {
	ID                string      `json:"id"`
	Lat               float64     `json:"lat"`
	Lng               float64     `json:"lng"`
	Type              string      `json:"type"`
	ImageURL          string      `json:"imageUrl"`
	SplitterRatio     string      `json:"splitterRatio"`
	RatioSetTimestamp flexTime    `json:"ratioSetTimestamp"`
	Name              string      `json:"name"`
	NextLineNumber    int         `json:"nextLineNumber"`
	LinkedTo          *legacyLink `json:"linkedTo"`
}

type legacyPolygon struct {
	ID        string      `json:"id"`
	Path      []geo.Point `json:"path"`
	Name      string      `json:"name"`
	Locked    bool        `json:"locked"`
	CreatedAt flexTime    `json:"createdAt"`
}

func orNewID(id string) string {
	if id == "" {
		return topology.NewID()
	}
	return id
}

func decodeLegacyLines(raw []byte) ([]topology.Line, error) {
	var in []legacyLine
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make([]topology.Line, 0, len(in))
	for _, l := range in {
		wps := make([]topology.Waypoint, 0, len(l.Waypoints))
		for _, w := range l.Waypoints {
			wps = append(wps, topology.Waypoint{ID: orNewID(w.ID), Lat: w.Lat, Lng: w.Lng})
		}
		out = append(out, topology.Line{
			ID:          orNewID(l.ID),
			From:        l.From,
			To:          l.To,
			Waypoints:   wps,
			Name:        l.Name,
			CreatedAt:   time.Time(l.CreatedAt),
			StrokeColor: l.StrokeColor,
		})
	}
	return out, nil
}

func decodeLegacyIcons(raw []byte, lines []topology.Line) ([]topology.Icon, error) {
	var in []legacyIcon
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make([]topology.Icon, 0, len(in))
	for _, ic := range in {
		t, ok := topology.ParseIconType(ic.Type)
		if !ok {
			t = topology.IconCustom
		}
		icon := topology.Icon{
			ID:             orNewID(ic.ID),
			Lat:            ic.Lat,
			Lng:            ic.Lng,
			Type:           t,
			ImageURL:       ic.ImageURL,
			SplitterRatio:  ic.SplitterRatio,
			RatioSetAt:     time.Time(ic.RatioSetTimestamp),
			Name:           ic.Name,
			NextLineNumber: ic.NextLineNumber,
		}
		if link := ic.LinkedTo; link != nil && link.LineIndex != nil && link.WaypointIndex != nil {
			li, wi := *link.LineIndex, *link.WaypointIndex
			if li >= 0 && li < len(lines) && wi >= 0 && wi < len(lines[li].Waypoints) {
				icon.LinkedTo = &topology.IconLink{LineID: lines[li].ID, WaypointID: lines[li].Waypoints[wi].ID}
			}
		}
		out = append(out, icon)
	}
	return out, nil
}

func decodeLegacyPolygons(raw []byte) ([]topology.Polygon, error) {
	var in []legacyPolygon
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make([]topology.Polygon, 0, len(in))
	for _, p := range in {
		out = append(out, topology.Polygon{
			ID:        orNewID(p.ID),
			Path:      p.Path,
			Name:      p.Name,
			Locked:    p.Locked,
			CreatedAt: time.Time(p.CreatedAt),
		})
	}
	return out, nil
}
