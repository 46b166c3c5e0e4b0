// Package splitter enforces splitter fan-out limits and names the lines that
// attach to a splitter.
package splitter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fibermap/core-go/internal/naming"
	"fibermap/core-go/internal/topology"
)

var ratios = []string{"1:2", "1:4", "1:8", "1:16", "1:32"}

var (
	ErrInvalidRatio = errors.New("invalid splitter ratio")
	ErrNotSplitter  = errors.New("icon is not a splitter")
)

// LimitExceededError rejects a new connection to a full splitter.
type LimitExceededError struct {
	Ratio string
	Count int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("splitter limit exceeded: ratio %s allows %d lines, %d connected", e.Ratio, RatioNumber(e.Ratio), e.Count)
}

// RatioTooLowError rejects a ratio change below the number of connected lines.
type RatioTooLowError struct {
	Ratio string
	Count int
}

func (e *RatioTooLowError) Error() string {
	return fmt.Sprintf("ratio %s is below the %d lines already connected", e.Ratio, e.Count)
}

func Ratios() []string {
	out := make([]string, len(ratios))
	copy(out, ratios)
	return out
}

func IsValidRatio(r string) bool {
	r = strings.TrimSpace(r)
	for _, v := range ratios {
		if v == r {
			return true
		}
	}
	return false
}

// RatioNumber parses "1:N" to N. Unset or malformed ratios yield 0.
func RatioNumber(r string) int {
	r = strings.TrimSpace(r)
	if r == "" {
		return 0
	}
	parts := strings.SplitN(r, ":", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) != "1" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ConnectedLineCount counts lines created after the splitter's ratio epoch that
// have any vertex attached to it.
func ConnectedLineCount(s topology.Icon, lines []topology.Line) int {
	var n int
	for _, l := range lines {
		if !l.CreatedAt.After(s.RatioSetAt) {
			continue
		}
		if l.AttachedTo(s.ID) {
			n++
		}
	}
	return n
}

// ValidateConnection checks whether one more line may attach to s. Unconfigured
// splitters impose no limit.
func ValidateConnection(s topology.Icon, lines []topology.Line, isNew bool) error {
	if !isNew {
		return nil
	}
	limit := RatioNumber(s.SplitterRatio)
	if limit == 0 {
		return nil
	}
	if count := ConnectedLineCount(s, lines); count >= limit {
		return &LimitExceededError{Ratio: s.SplitterRatio, Count: count}
	}
	return nil
}

// NextLineName is the name the next attached line receives.
func NextLineName(s topology.Icon) string {
	return naming.LineName(nextNumber(s))
}

// AssignName names l after s when l has no name yet and advances the counter.
// The counter never goes back, so names are never reused.
func AssignName(s *topology.Icon, l *topology.Line) bool {
	if strings.TrimSpace(l.Name) != "" {
		return false
	}
	l.Name = NextLineName(*s)
	s.NextLineNumber = nextNumber(*s) + 1
	return true
}

func nextNumber(s topology.Icon) int {
	if s.NextLineNumber < 1 {
		return 1
	}
	return s.NextLineNumber
}

// SetRatio moves the splitter's ratio state machine. The first ratio records
// the epoch at now; later changes keep it and may not drop below the current
// connected count.
func SetRatio(s *topology.Icon, ratio string, lines []topology.Line, now time.Time) error {
	if !s.IsSplitter() {
		return ErrNotSplitter
	}
	ratio = strings.TrimSpace(ratio)
	if !IsValidRatio(ratio) {
		return fmt.Errorf("%w: %q", ErrInvalidRatio, ratio)
	}
	if s.SplitterRatio == "" {
		s.SplitterRatio = ratio
		s.RatioSetAt = now
		if s.NextLineNumber < 1 {
			s.NextLineNumber = 1
		}
		return nil
	}
	if count := ConnectedLineCount(*s, lines); RatioNumber(ratio) < count {
		return &RatioTooLowError{Ratio: ratio, Count: count}
	}
	s.SplitterRatio = ratio
	return nil
}

// Status summarizes a splitter for the configuration panel.
type Status struct {
	IconID       string    `json:"iconId"`
	Ratio        string    `json:"ratio,omitempty"`
	Limit        int       `json:"limit"`
	Connected    int       `json:"connected"`
	Remaining    *int      `json:"remaining,omitempty"`
	NextLineName string    `json:"nextLineName"`
	RatioSetAt   time.Time `json:"ratioSetTimestamp,omitzero"`
}

func StatusOf(s topology.Icon, lines []topology.Line) Status {
	st := Status{
		IconID:       s.ID,
		Ratio:        s.SplitterRatio,
		Limit:        RatioNumber(s.SplitterRatio),
		Connected:    ConnectedLineCount(s, lines),
		NextLineName: NextLineName(s),
		RatioSetAt:   s.RatioSetAt,
	}
	if st.Limit > 0 {
		rem := max(st.Limit-st.Connected, 0)
		st.Remaining = &rem
	}
	return st
}

// RestoreCounter moves the counter past every "Line n" already attached to s.
// Data saved without a counter would otherwise hand out names twice.
func RestoreCounter(s *topology.Icon, lines []topology.Line) {
	next := nextNumber(*s)
	for _, l := range lines {
		if !l.AttachedTo(s.ID) {
			continue
		}
		if n, ok := naming.ParseLineNumber(l.Name); ok && n >= next {
			next = n + 1
		}
	}
	s.NextLineNumber = next
}

// ReconcileCounters runs after src was merged into dst. Each splitter of dst
// moves its counter to at least the value src holds for the same splitter and
// past every "Line n" now attached to it in dst.
func ReconcileCounters(dst, src *topology.Store) {
	for i := range dst.Icons {
		ic := &dst.Icons[i]
		if !ic.IsSplitter() {
			continue
		}
		if si := src.IconIndex(ic.ID); si >= 0 && src.Icons[si].NextLineNumber > ic.NextLineNumber {
			ic.NextLineNumber = src.Icons[si].NextLineNumber
		}
		RestoreCounter(ic, dst.Lines)
	}
}

// OverLimit returns the status of every splitter in s with more connected lines
// than its ratio allows. Merging two stores can produce that state.
func OverLimit(s *topology.Store) []Status {
	var out []Status
	for _, ic := range s.Icons {
		if !ic.IsSplitter() {
			continue
		}
		st := StatusOf(ic, s.Lines)
		if st.Limit > 0 && st.Connected > st.Limit {
			out = append(out, st)
		}
	}
	return out
}
