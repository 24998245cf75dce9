package domain

import "time"

// WindowKind is a fixed calendar period over which a usage cap is enforced.
type WindowKind string

const (
	WindowDay   WindowKind = "day"
	WindowWeek  WindowKind = "week"
	WindowMonth WindowKind = "month"
)

// AllWindows lists the window kinds in ascending span order.
var AllWindows = []WindowKind{WindowDay, WindowWeek, WindowMonth}

// Start returns the UTC boundary of the window containing at. Days reset at
// midnight UTC, weeks on Monday midnight UTC, months on the 1st.
func (w WindowKind) Start(at time.Time) time.Time {
	at = at.UTC()
	switch w {
	case WindowDay:
		return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	case WindowWeek:
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		// Monday-based week: Sunday counts as 6 days in.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case WindowMonth:
		return time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return at
}

// UsageCounter tracks accepted generations for one (owner, feature, window).
// Exactly one counter is active per triple at a time; a counter whose
// WindowStart predates the current boundary is rolled over by the store.
type UsageCounter struct {
	OwnerID     string
	Feature     TaskType
	Window      WindowKind
	WindowStart time.Time
	Count       int
	UpdatedAt   time.Time
}

// SpendRecord tracks month-to-date paid-model spend for one owner, used to
// compute the remaining tier budget.
type SpendRecord struct {
	OwnerID    string
	MonthStart time.Time
	AmountUSD  float64
}
