package entity

import (
	"strings"
	"time"
)

// =============================================================================
// CIVIL TIME - fixed UTC+8, no daylight saving
// =============================================================================

// CivilLayout is the storage and display format for every timestamp.
const CivilLayout = "2006-01-02 15:04:05"

// CivilZone is the fixed offset all timestamps are recorded in, independent
// of the server's local zone.
var CivilZone = time.FixedZone("UTC+8", 8*60*60)

// Clock returns the current instant. Swapped out in tests.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// FormatCivil renders t in the civil zone.
func FormatCivil(t time.Time) string {
	return t.In(CivilZone).Format(CivilLayout)
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
}

var civilLayouts = []string{
	CivilLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseCivil accepts either a zoned timestamp (converted to the civil zone)
// or a zone-less one, which is read as already being civil time.
// An empty string yields the zero time and no error.
func ParseCivil(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(CivilZone), nil
		}
	}
	for _, layout := range civilLayouts {
		if t, err := time.ParseInLocation(layout, s, CivilZone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, Invalid("time", "unrecognised timestamp "+s)
}

// NormalizeCivil parses s and re-renders it in CivilLayout, falling back to
// now when s is empty.
func NormalizeCivil(s string, now Clock) (string, error) {
	t, err := ParseCivil(s)
	if err != nil {
		return "", err
	}
	if t.IsZero() {
		t = now()
	}
	return FormatCivil(t), nil
}
