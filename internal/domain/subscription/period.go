package subscription

import "time"

// MissedIntervals is the number of interval boundaries overdue at now,
// counting the one in progress: floor((now - activeUntil) / interval) + 1.
// It is zero when nothing is overdue.
func MissedIntervals(activeUntil, now time.Time, interval time.Duration) int {
	if interval <= 0 || now.Before(activeUntil) {
		return 0
	}
	return int(now.Sub(activeUntil)/interval) + 1
}

// Extend moves the paid-through horizon forward by n intervals
func Extend(activeUntil time.Time, interval time.Duration, n int) time.Time {
	return activeUntil.Add(interval * time.Duration(n))
}
