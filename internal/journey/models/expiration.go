package models

import "time"

const (
	DefaultProcessingWindowDays = 37
	DefaultMinimumWindowDays    = 7
	DefaultMaximumWindowDays    = 90
)

// ExpiryPolicy holds the windows that bound a journey's expiration date.
type ExpiryPolicy struct {
	ProcessingWindowDays int
	MinimumWindowDays    int
	MaximumWindowDays    int
}

// DefaultExpiryPolicy is the policy used when none is configured.
func DefaultExpiryPolicy() ExpiryPolicy {
	return ExpiryPolicy{
		ProcessingWindowDays: DefaultProcessingWindowDays,
		MinimumWindowDays:    DefaultMinimumWindowDays,
		MaximumWindowDays:    DefaultMaximumWindowDays,
	}
}

// ExpireDate applies the policy: selectedDate minus the processing window,
// clamped into [now+minimum, now+maximum]. Dates are truncated to UTC days.
func (p ExpiryPolicy) ExpireDate(selectedDate, now time.Time) time.Time {
	selected := utcDay(selectedDate)
	today := utcDay(now)

	candidate := selected.AddDate(0, 0, -p.ProcessingWindowDays)
	earliest := today.AddDate(0, 0, p.MinimumWindowDays)
	latest := today.AddDate(0, 0, p.MaximumWindowDays)

	if candidate.Before(earliest) {
		return earliest
	}
	if candidate.After(latest) {
		return latest
	}
	return candidate
}

// CalculateExpireDate uses the default minimum window.
func CalculateExpireDate(selectedDate, now time.Time, processingWindowDays, maxWindowDays int) time.Time {
	return ExpiryPolicy{
		ProcessingWindowDays: processingWindowDays,
		MinimumWindowDays:    DefaultMinimumWindowDays,
		MaximumWindowDays:    maxWindowDays,
	}.ExpireDate(selectedDate, now)
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
