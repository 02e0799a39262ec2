package service

import "time"

// sameBucket reports whether both timestamps fall into the same ten
// minute wall clock bucket. The comparison is on calendar fields; a
// repeated hour after a DST switch folds into the earlier one.
func sameBucket(a, b time.Time) bool {
	return a.Year() == b.Year() &&
		a.Month() == b.Month() &&
		a.Day() == b.Day() &&
		a.Hour() == b.Hour() &&
		a.Minute()/10 == b.Minute()/10
}

// dayOf strips the time portion, keeping the local calendar day.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
