package topology

import (
	"sort"
	"strings"
)

// IconType is the equipment kind an icon stands for.
type IconType string

const (
	IconBTS         IconType = "BTS"
	IconTermination IconType = "Termination"
	IconSplitter    IconType = "Splitter"
	IconONU         IconType = "ONU"
	IconCustom      IconType = "Custom"
)

var allIconTypes = []IconType{
	IconBTS,
	IconTermination,
	IconSplitter,
	IconONU,
	IconCustom,
}

func AllIconTypes() []IconType {
	out := make([]IconType, len(allIconTypes))
	copy(out, allIconTypes)
	return out
}

// ParseIconType accepts any casing and surrounding whitespace.
func ParseIconType(raw string) (IconType, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	for _, t := range allIconTypes {
		if strings.ToLower(string(t)) == s {
			return t, true
		}
	}
	return "", false
}

// NormalizeIconTypes drops unknown entries and duplicates and sorts the rest.
func NormalizeIconTypes(raw []string) []IconType {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[IconType]struct{}, len(raw))
	out := make([]IconType, 0, len(raw))
	for _, r := range raw {
		t, ok := ParseIconType(r)
		if !ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
