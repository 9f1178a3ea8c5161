// Package bizclock converts local business time (date + HH:mm at the site) to
// absolute instants and back. All comparisons and storage use UTC instants.
package bizclock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
	ScopeLayout = "2006-01"

	// OffsetSeconds is the fixed site offset (UTC+7, no DST).
	OffsetSeconds = 7 * 60 * 60
)

// Location is the business timezone.
var Location = time.FixedZone("UTC+7", OffsetSeconds)

// ParseDate parses YYYY-MM-DD as local midnight and returns it as an instant.
func ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return d.UTC(), nil
}

// ParseClock parses "HH:mm" (also accepts "H:mm" and "HH.mm" as found in imported sheets)
// into minutes since midnight.
func ParseClock(clock string) (int, error) {
	clock = strings.TrimSpace(strings.ReplaceAll(clock, ".", ":"))
	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %s", clock)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hour*60 + minute, nil
}

// At combines a local date and clock time into an absolute instant.
func At(date, clock string) (time.Time, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(minutes) * time.Minute), nil
}

// Local returns t in the business timezone.
func Local(t time.Time) time.Time {
	return t.In(Location)
}

// FormatDate renders the local calendar date of t.
func FormatDate(t time.Time) string {
	return Local(t).Format(DateLayout)
}

// FormatClock renders the local HH:mm of t.
func FormatClock(t time.Time) string {
	return Local(t).Format(ClockLayout)
}

// DayBounds returns [start, end) of the local calendar day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	l := Local(t)
	start := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Location)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// Scope identifies an import scope: one local calendar month.
type Scope struct {
	Year  int
	Month time.Month
}

// ParseScope parses "YYYY-MM".
func ParseScope(s string) (Scope, error) {
	t, err := time.ParseInLocation(ScopeLayout, strings.TrimSpace(s), Location)
	if err != nil {
		return Scope{}, fmt.Errorf("invalid scope %q, expected YYYY-MM", s)
	}
	return Scope{Year: t.Year(), Month: t.Month()}, nil
}

// ScopeOf returns the month scope containing t.
func ScopeOf(t time.Time) Scope {
	l := Local(t)
	return Scope{Year: l.Year(), Month: l.Month()}
}

// Key is the persisted form of the scope.
func (s Scope) Key() string {
	return fmt.Sprintf("%04d-%02d", s.Year, int(s.Month))
}

func (s Scope) String() string {
	return s.Key()
}

// Start is local midnight of the first day of the month.
func (s Scope) Start() time.Time {
	return time.Date(s.Year, s.Month, 1, 0, 0, 0, 0, Location).UTC()
}

// End is the exclusive end of the month.
func (s Scope) End() time.Time {
	return time.Date(s.Year, s.Month, 1, 0, 0, 0, 0, Location).AddDate(0, 1, 0).UTC()
}

// Contains reports whether t falls inside [Start, End).
func (s Scope) Contains(t time.Time) bool {
	return !t.Before(s.Start()) && t.Before(s.End())
}
