package analytics

import (
	"fmt"
	"time"
)

// Window selects the time range a dashboard query covers.
type Window struct {
	Label    string
	duration time.Duration
	allTime  bool
}

// Supported windows. AllTime answers from the rollup table; the bounded
// windows answer from the event log.
var (
	WindowDay     = Window{Label: "1d", duration: 24 * time.Hour}
	Window7Days   = Window{Label: "7d", duration: 7 * 24 * time.Hour}
	Window30Days  = Window{Label: "30d", duration: 30 * 24 * time.Hour}
	Window90Days  = Window{Label: "90d", duration: 90 * 24 * time.Hour}
	WindowAllTime = Window{Label: "all_time", allTime: true}
)

// ParseWindow maps a period query parameter to a window. Absent selects
// all time.
func ParseWindow(period string) (Window, error) {
	switch period {
	case "", "all_time":
		return WindowAllTime, nil
	case "1d":
		return WindowDay, nil
	case "7d":
		return Window7Days, nil
	case "30d":
		return Window30Days, nil
	case "90d":
		return Window90Days, nil
	default:
		return Window{}, fmt.Errorf("unsupported period: %s", period)
	}
}

// IsAllTime reports whether the window is unbounded.
func (w Window) IsAllTime() bool {
	return w.allTime
}

// Start returns the lower bound of the window relative to now, or the zero
// time for all time.
func (w Window) Start(now time.Time) time.Time {
	if w.allTime {
		return time.Time{}
	}
	return now.Add(-w.duration)
}

// View is the closed set of dashboard views. Dispatch is a tagged enum
// switch, not string comparison chains, so adding a view without handling it
// is a compile-visible change.
type View int

const (
	ViewSummary View = iota
	ViewDetails
	ViewDomainSummary
	ViewDomainDetails
	ViewGraph
)

// ParseView maps the view query parameter. Absent selects the summary.
func ParseView(name string) (View, error) {
	switch name {
	case "":
		return ViewSummary, nil
	case "details":
		return ViewDetails, nil
	case "domain_summary":
		return ViewDomainSummary, nil
	case "domain_details":
		return ViewDomainDetails, nil
	case "graph":
		return ViewGraph, nil
	default:
		return 0, fmt.Errorf("unsupported view: %s", name)
	}
}

// GraphPeriod selects the bucketing of the graph view.
type GraphPeriod struct {
	Label    string
	buckets  int
	step     func(time.Time, int) time.Time
	dbFormat string // sqlite strftime format keying each bucket
	key      string // matching Go layout for zero-filling
}

var (
	// GraphDaily is the last 24 hours in hourly buckets.
	GraphDaily = GraphPeriod{
		Label:   "daily",
		buckets: 24,
		step: func(t time.Time, n int) time.Time {
			return t.Add(time.Duration(n) * time.Hour)
		},
		dbFormat: "%Y-%m-%d %H:00",
		key:      "2006-01-02 15:00",
	}
	// GraphWeekly is the last 7 days in daily buckets.
	GraphWeekly = GraphPeriod{
		Label:    "weekly",
		buckets:  7,
		step:     func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) },
		dbFormat: "%Y-%m-%d",
		key:      "2006-01-02",
	}
	// GraphMonthly is the last 30 days in daily buckets.
	GraphMonthly = GraphPeriod{
		Label:    "monthly",
		buckets:  30,
		step:     func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) },
		dbFormat: "%Y-%m-%d",
		key:      "2006-01-02",
	}
	// GraphYearly is the last 12 months in monthly buckets.
	GraphYearly = GraphPeriod{
		Label:    "yearly",
		buckets:  12,
		step:     func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) },
		dbFormat: "%Y-%m",
		key:      "2006-01",
	}
)

// ParseGraphPeriod maps the period parameter of the graph view.
func ParseGraphPeriod(name string) (GraphPeriod, error) {
	switch name {
	case "", "weekly":
		return GraphWeekly, nil
	case "daily":
		return GraphDaily, nil
	case "monthly":
		return GraphMonthly, nil
	case "yearly":
		return GraphYearly, nil
	default:
		return GraphPeriod{}, fmt.Errorf("unsupported graph period: %s", name)
	}
}

// truncate aligns a timestamp to the period's bucket boundary.
func (p GraphPeriod) truncate(t time.Time) time.Time {
	t = t.UTC()
	switch p.Label {
	case "daily":
		return t.Truncate(time.Hour)
	case "yearly":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// bucketKeys lists every bucket key in the period ending at now, oldest
// first. Used to zero-fill buckets the event log has no rows for.
func (p GraphPeriod) bucketKeys(now time.Time) []string {
	end := p.truncate(now)
	keys := make([]string, 0, p.buckets)
	for i := p.buckets - 1; i >= 0; i-- {
		keys = append(keys, p.step(end, -i).Format(p.key))
	}
	return keys
}

// start returns the lower bound of the graph window ending at now.
func (p GraphPeriod) start(now time.Time) time.Time {
	return p.step(p.truncate(now), -(p.buckets - 1))
}
