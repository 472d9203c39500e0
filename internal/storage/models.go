package storage

import (
	"fmt"
	"regexp"
)

// UnknownTitle is stored when the metadata source does not report a title.
const UnknownTitle = "Unknown Title"

// Video is one catalog record as persisted on disk.
type Video struct {
	Name string `json:"name"` // Display title, never empty
	Time string `json:"time"` // HH:MM:SS, hours unbounded
	URL  string `json:"url"`  // Canonical playable URL
}

var durationRegex = regexp.MustCompile(`^\d{2,}:\d{2}:\d{2}$`)

// FormatDuration renders a non-negative number of seconds as HH:MM:SS.
// Hours are zero-padded to two digits but never wrap, so 360000 becomes
// "100:00:00". Negative input is clamped to zero.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// ValidDuration reports whether s has the shape produced by FormatDuration.
func ValidDuration(s string) bool {
	if !durationRegex.MatchString(s) {
		return false
	}
	// Minutes and seconds must stay below 60.
	n := len(s)
	return s[n-5] < '6' && s[n-2] < '6'
}

// Validate checks the record invariants enforced on load.
func (v Video) Validate() error {
	switch {
	case v.Name == "":
		return fmt.Errorf("empty name")
	case !ValidDuration(v.Time):
		return fmt.Errorf("invalid time %q", v.Time)
	case v.URL == "":
		return fmt.Errorf("empty url")
	}
	return nil
}
