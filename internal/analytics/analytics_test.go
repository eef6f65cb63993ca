package analytics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minilytics/internal/aggregates"
	"minilytics/internal/analytics"
	"minilytics/internal/events"
	"minilytics/internal/testsupport"
)

func fp(c rune) string {
	return strings.Repeat(string(c), 64)
}

func TestParseWindow(t *testing.T) {
	t.Run("accepts every documented period", func(t *testing.T) {
		for _, period := range []string{"", "1d", "7d", "30d", "90d", "all_time"} {
			_, err := analytics.ParseWindow(period)
			assert.NoError(t, err, period)
		}
	})

	t.Run("rejects unknown periods", func(t *testing.T) {
		_, err := analytics.ParseWindow("14d")
		assert.Error(t, err)
	})

	t.Run("bounded windows have a start", func(t *testing.T) {
		now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
		window, err := analytics.ParseWindow("7d")
		require.NoError(t, err)
		assert.False(t, window.IsAllTime())
		assert.Equal(t, now.AddDate(0, 0, -7), window.Start(now))
	})

	t.Run("all time is unbounded", func(t *testing.T) {
		window, err := analytics.ParseWindow("all_time")
		require.NoError(t, err)
		assert.True(t, window.IsAllTime())
		assert.True(t, window.Start(time.Now()).IsZero())
	})
}

func TestParseView(t *testing.T) {
	t.Run("absent view is the summary", func(t *testing.T) {
		view, err := analytics.ParseView("")
		require.NoError(t, err)
		assert.Equal(t, analytics.ViewSummary, view)
	})

	t.Run("accepts every documented view", func(t *testing.T) {
		for _, name := range []string{"details", "domain_summary", "domain_details", "graph"} {
			_, err := analytics.ParseView(name)
			assert.NoError(t, err, name)
		}
	})

	t.Run("rejects unknown views", func(t *testing.T) {
		_, err := analytics.ParseView("firehose")
		assert.Error(t, err)
	})
}

func TestSummary(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	engine := analytics.New(dbManager, logger)
	now := time.Now().UTC()

	t.Run("empty store yields zeros, not errors", func(t *testing.T) {
		for _, period := range []string{"all_time", "7d"} {
			window, err := analytics.ParseWindow(period)
			require.NoError(t, err)

			overview, err := engine.Summary(window, "", now)
			require.NoError(t, err, period)
			assert.Zero(t, overview.PageViews)
			assert.Zero(t, overview.UniqueVisitors)
			assert.Zero(t, overview.Sessions)
			assert.Zero(t, overview.BounceRate)
			assert.Zero(t, overview.AvgSessionSeconds)
		}
	})

	// Visitor a: two pageviews 42s apart. Visitor b: one pageview (bounce).
	base := now.Add(-time.Hour)
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://example.com/", Domain: "example.com", Timestamp: base, IsUnique: true, Fingerprint: fp('a')})
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://example.com/about", Domain: "example.com", Timestamp: base.Add(42 * time.Second), Fingerprint: fp('a')})
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://example.com/", Domain: "example.com", Timestamp: base, IsUnique: true, Fingerprint: fp('b')})

	require.NoError(t, aggregates.UpsertView(db, "https://example.com/", "example.com", true))
	require.NoError(t, aggregates.UpsertView(db, "https://example.com/", "example.com", true))
	require.NoError(t, aggregates.UpsertView(db, "https://example.com/about", "example.com", false))
	require.NoError(t, aggregates.AddActiveSeconds(db, "https://example.com/", "example.com", 30))

	t.Run("all time reads the rollup", func(t *testing.T) {
		overview, err := engine.Summary(analytics.WindowAllTime, "", now)
		require.NoError(t, err)
		assert.EqualValues(t, 3, overview.PageViews)
		assert.EqualValues(t, 2, overview.UniqueVisitors)
		assert.InDelta(t, 10.0, overview.AvgActiveSeconds, 0.001)
	})

	t.Run("session metrics come from the log", func(t *testing.T) {
		overview, err := engine.Summary(analytics.WindowAllTime, "example.com", now)
		require.NoError(t, err)
		assert.EqualValues(t, 2, overview.Sessions)
		assert.InDelta(t, 50.0, overview.BounceRate, 0.001)
		assert.InDelta(t, 21.0, overview.AvgSessionSeconds, 0.001)
	})

	t.Run("bounded windows read the log", func(t *testing.T) {
		overview, err := engine.Summary(analytics.Window7Days, "example.com", now)
		require.NoError(t, err)
		assert.EqualValues(t, 3, overview.PageViews)
		assert.EqualValues(t, 2, overview.UniqueVisitors)
	})
}

func TestTopPages(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	engine := analytics.New(dbManager, logger)
	now := time.Now().UTC()

	// Rollup rows diverge from the recent log on purpose: /legacy has all-time
	// weight but no recent traffic.
	for i := 0; i < 5; i++ {
		require.NoError(t, aggregates.UpsertView(db, "https://example.com/legacy", "example.com", false))
	}
	require.NoError(t, aggregates.UpsertView(db, "https://example.com/new", "example.com", true))

	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://example.com/new", Domain: "example.com", Timestamp: now.Add(-time.Hour), Fingerprint: fp('a')})

	t.Run("all time ranks by rollup", func(t *testing.T) {
		pages, err := engine.TopPages(analytics.WindowAllTime, "", 10, now)
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Equal(t, "https://example.com/legacy", pages[0].URL)
		assert.EqualValues(t, 5, pages[0].Views)
	})

	t.Run("bounded windows rank by the log", func(t *testing.T) {
		pages, err := engine.TopPages(analytics.Window7Days, "", 10, now)
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, "https://example.com/new", pages[0].URL)
	})
}

func TestDomainSummary(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	engine := analytics.New(dbManager, logger)
	now := time.Now().UTC()

	// a.com: one visitor today, another 10 days ago. b.com: one visitor today.
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://a.com/", Domain: "a.com", Timestamp: now.Add(-time.Hour), Fingerprint: fp('a')})
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://a.com/", Domain: "a.com", Timestamp: now.AddDate(0, 0, -10), Fingerprint: fp('b')})
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://b.com/", Domain: "b.com", Timestamp: now.Add(-time.Hour), Fingerprint: fp('c')})

	rows, err := engine.DomainSummary(now)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "a.com", rows[0].Domain)
	assert.EqualValues(t, 1, rows[0].Daily)
	assert.EqualValues(t, 1, rows[0].Weekly)
	assert.EqualValues(t, 2, rows[0].Monthly)
	assert.EqualValues(t, 2, rows[0].Yearly)

	assert.Equal(t, "b.com", rows[1].Domain)
	assert.EqualValues(t, 1, rows[1].Yearly)
}

func TestDomainDetails(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	engine := analytics.New(dbManager, logger)
	now := time.Now().UTC()

	testsupport.InsertTestEvent(t, db, &events.Event{
		URL: "https://example.com/", Domain: "example.com", Timestamp: now.Add(-time.Hour),
		Referrer: "https://news.ycombinator.com/", Browser: "chrome", DeviceType: "desktop",
		Country: "DE", ClientAddr: "203.0.113.9", Fingerprint: fp('a'),
	})
	testsupport.InsertTestEvent(t, db, &events.Event{
		URL: "https://example.com/", Domain: "example.com", Timestamp: now.Add(-time.Hour),
		Referrer: "https://news.ycombinator.com/", Browser: "firefox", DeviceType: "mobile",
		Country: "DE", ClientAddr: "203.0.113.10", Fingerprint: fp('b'),
	})

	t.Run("requires a domain", func(t *testing.T) {
		_, err := engine.DomainDetailsInWindow(analytics.Window7Days, "", false, now)
		assert.ErrorIs(t, err, analytics.ErrDomainRequired)
	})

	t.Run("breaks the domain down", func(t *testing.T) {
		details, err := engine.DomainDetailsInWindow(analytics.Window7Days, "example.com", false, now)
		require.NoError(t, err)

		require.Len(t, details.Referrers, 1)
		assert.EqualValues(t, 2, details.Referrers[0].Count)
		assert.Len(t, details.Browsers, 2)
		assert.Len(t, details.Devices, 2)
		assert.Empty(t, details.Addresses, "addresses are admin-only")
	})

	t.Run("humanizes country codes", func(t *testing.T) {
		details, err := engine.DomainDetailsInWindow(analytics.Window7Days, "example.com", false, now)
		require.NoError(t, err)
		require.Len(t, details.Countries, 1)
		assert.Equal(t, "Germany", details.Countries[0].Name)
	})

	t.Run("admins see address breakdowns", func(t *testing.T) {
		details, err := engine.DomainDetailsInWindow(analytics.Window7Days, "example.com", true, now)
		require.NoError(t, err)
		assert.Len(t, details.Addresses, 2)
	})
}

func TestEventLog(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	engine := analytics.New(dbManager, logger)
	now := time.Now().UTC()

	testsupport.InsertTestEvent(t, db, &events.Event{
		URL: "https://example.com/", Domain: "example.com", Timestamp: now,
		ClientAddr: "203.0.113.9", Fingerprint: fp('a'),
	})

	t.Run("requires a url", func(t *testing.T) {
		_, err := engine.EventLog("", 50, false)
		assert.Error(t, err)
	})

	t.Run("redacts client addresses for non-admins", func(t *testing.T) {
		entries, err := engine.EventLog("https://example.com/", 50, false)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Empty(t, entries[0].ClientAddr)
	})

	t.Run("exposes client addresses to admins", func(t *testing.T) {
		entries, err := engine.EventLog("https://example.com/", 50, true)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "203.0.113.9", entries[0].ClientAddr)
	})
}

func TestGraph(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	engine := analytics.New(dbManager, logger)
	// Fixed reference time keeps bucket boundaries deterministic.
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	// Traffic on two of the last seven days.
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://example.com/", Domain: "example.com", Timestamp: now.Add(-time.Hour), Fingerprint: fp('a')})
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://example.com/", Domain: "example.com", Timestamp: now.Add(-time.Hour), Fingerprint: fp('b')})
	testsupport.InsertTestEvent(t, db, &events.Event{URL: "https://example.com/", Domain: "example.com", Timestamp: now.AddDate(0, 0, -3), Fingerprint: fp('c')})

	t.Run("weekly series has one zero-filled bucket per day", func(t *testing.T) {
		period, err := analytics.ParseGraphPeriod("weekly")
		require.NoError(t, err)

		series, err := engine.Graph(period, "", now)
		require.NoError(t, err)
		require.Len(t, series.Buckets, 7)

		var nonEmpty int
		var totalViews int64
		for _, bucket := range series.Buckets {
			assert.NotEmpty(t, bucket.Date)
			if bucket.Views > 0 {
				nonEmpty++
			}
			totalViews += bucket.Views
		}
		assert.Equal(t, 2, nonEmpty)
		assert.EqualValues(t, 3, totalViews)

		today := series.Buckets[len(series.Buckets)-1]
		assert.Equal(t, now.Format("2006-01-02"), today.Date)
		assert.EqualValues(t, 2, today.Views)
		assert.EqualValues(t, 2, today.Visitors)
	})

	t.Run("yearly series has twelve buckets", func(t *testing.T) {
		period, err := analytics.ParseGraphPeriod("yearly")
		require.NoError(t, err)

		series, err := engine.Graph(period, "", now)
		require.NoError(t, err)
		assert.Len(t, series.Buckets, 12)
	})

	t.Run("domain filter excludes other traffic", func(t *testing.T) {
		period, err := analytics.ParseGraphPeriod("weekly")
		require.NoError(t, err)

		series, err := engine.Graph(period, "other.com", now)
		require.NoError(t, err)
		for _, bucket := range series.Buckets {
			assert.Zero(t, bucket.Views)
		}
	})

	t.Run("rejects unknown periods", func(t *testing.T) {
		_, err := analytics.ParseGraphPeriod("hourly")
		assert.Error(t, err)
	})
}
