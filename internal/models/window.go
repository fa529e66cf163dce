package models

import (
	"fmt"
	"time"
)

// Window is the half-open interval [Start, End) in UTC
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastDays returns the window ending at now covering the previous n days
func LastDays(now time.Time, n int) Window {
	end := now.UTC()
	return Window{Start: end.AddDate(0, 0, -n), End: end}
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Validate reports a window that is unset or does not move forward in time
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window start and end are required")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("window end %s is not after start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("%s/%s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Granularity is the bucket size of a cost trend
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity accepts the canonical names plus a few common aliases
func ParseGranularity(s string) (Granularity, bool) {
	switch s {
	case "hour", "hourly":
		return GranularityHour, true
	case "", "day", "daily":
		return GranularityDay, true
	case "week", "weekly":
		return GranularityWeek, true
	case "month", "monthly":
		return GranularityMonth, true
	}
	return "", false
}

// Truncate aligns t (in UTC) to the start of its bucket. Weeks start on
// Monday, matching BigQuery WEEK(MONDAY) and SQL Server iso_week.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityHour:
		return t.Truncate(time.Hour)
	case GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Next returns the start of the bucket following the one starting at t
func (g Granularity) Next(t time.Time) time.Time {
	switch g {
	case GranularityHour:
		return t.Add(time.Hour)
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Buckets returns how many buckets of g cover w
func (g Granularity) Buckets(w Window) int {
	n := 0
	for t := g.Truncate(w.Start); t.Before(w.End); t = g.Next(t) {
		n++
	}
	return n
}
