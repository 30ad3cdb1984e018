// Package privacy screens content before it is embedded or persisted.
// Writes containing a private-content marker are suppressed entirely,
// never partially redacted.
package privacy

import "strings"

// DefaultMarkers are the private-content markers recognized out of the box.
var DefaultMarkers = []string{"[PRIVATE]", "DO NOT STORE"}

// Filter decides whether content may be embedded and persisted.
type Filter interface {
	// Blocked reports whether the content contains a private marker.
	Blocked(content string) bool

	// IsEnabled returns whether filtering is active.
	IsEnabled() bool
}

// markerFilter blocks content containing any configured marker,
// case-insensitively.
type markerFilter struct {
	markers []string
}

// New creates a Filter for the given markers. Nil or empty markers fall
// back to DefaultMarkers.
func New(markers []string) Filter {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}

	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m == "" {
			continue
		}
		lowered = append(lowered, strings.ToLower(m))
	}

	return &markerFilter{markers: lowered}
}

// Blocked reports whether the content contains a private marker.
func (f *markerFilter) Blocked(content string) bool {
	if content == "" {
		return false
	}
	lowered := strings.ToLower(content)
	for _, m := range f.markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

// IsEnabled returns true when at least one marker is configured.
func (f *markerFilter) IsEnabled() bool {
	return len(f.markers) > 0
}

// NoopFilter never blocks anything (for testing or disabled mode).
type NoopFilter struct{}

// Blocked returns false.
func (NoopFilter) Blocked(content string) bool { return false }

// IsEnabled returns false.
func (NoopFilter) IsEnabled() bool { return false }

// Compile-time checks.
var _ Filter = (*markerFilter)(nil)
var _ Filter = NoopFilter{}
