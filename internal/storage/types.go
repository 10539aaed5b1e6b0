package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTime reports input that is not a valid "HH:MM" time of day.
	ErrInvalidTime = errors.New("invalid time of day")
	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): a single JSON object file
type Config struct {
	Driver string
	Path   string
}

// Entries maps user id to a persisted "HH:MM" string.
type Entries map[string]string

// FireTime is a validated local time of day.
type FireTime struct {
	Hour   int
	Minute int
}

// String renders the zero-padded "HH:MM" form.
func (t FireTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseFireTime accepts "H:M" with one or two digits per part, hour 0-23
// and minute 0-59. Surrounding whitespace is ignored.
func ParseFireTime(s string) (FireTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return FireTime{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, ok := parseClockPart(parts[0], 23)
	if !ok {
		return FireTime{}, fmt.Errorf("%w: hour in %q", ErrInvalidTime, s)
	}
	m, ok := parseClockPart(parts[1], 59)
	if !ok {
		return FireTime{}, fmt.Errorf("%w: minute in %q", ErrInvalidTime, s)
	}
	return FireTime{Hour: h, Minute: m}, nil
}

func parseClockPart(s string, maxV int) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil || v > maxV {
		return 0, false
	}
	return v, true
}
