package database

import "time"

// GetToday returns today's date as YYYY-MM-DD.
func GetToday() string {
	return time.Now().Format(time.DateOnly)
}

// FormatDateDisplay formats a stored article date for display, e.g.
// "Feb 06, 2026". Unparseable values are returned unchanged.
func FormatDateDisplay(date string) string {
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.DateTime} {
		if d, err := time.Parse(layout, date); err == nil {
			return d.Format("Jan 02, 2006")
		}
	}
	return date
}
