package service

import "time"

// AdvanceStreak derives the next streak value from the UTC calendar-day
// distance between the last qualifying activity and now. Day boundaries are
// UTC midnight, so the result does not depend on server locale.
//
//	no prior activity  -> 1
//	same UTC day       -> unchanged (no double-increment)
//	next UTC day       -> +1
//	gap of 2+ days     -> 1 (streak broken)
func AdvanceStreak(lastActivityAt *time.Time, now time.Time, current int) int {
	if lastActivityAt == nil {
		return 1
	}

	switch daysBetween(*lastActivityAt, now) {
	case 0:
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}

// daysBetween counts UTC midnight crossings from a to b.
func daysBetween(a, b time.Time) int {
	return int(utcMidnight(b).Sub(utcMidnight(a)).Hours() / 24)
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfPreviousUTCDay is the sweep cutoff: a streak whose last activity is
// before this moment missed the whole prior day window.
func StartOfPreviousUTCDay(now time.Time) time.Time {
	return utcMidnight(now).Add(-24 * time.Hour)
}
