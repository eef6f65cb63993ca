package collector_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minilytics/internal/aggregates"
	"minilytics/internal/collector"
	"minilytics/internal/domains"
	"minilytics/internal/events"
	"minilytics/internal/testsupport"
	"minilytics/internal/visitors"
)

const (
	desktopUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	botUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestTrackPageView(t *testing.T) {
	cfg := testsupport.GetConfig(t)
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.RegisterTestDomain(t, db, "example.com")
	col := collector.New(dbManager, logger, cfg, nil)

	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	input := func(url string) *collector.PageViewInput {
		return &collector.PageViewInput{
			URL:        url,
			Referrer:   "https://ref.example.org/",
			ClientAddr: "203.0.113.9",
			UserAgent:  desktopUA,
			Timestamp:  ts,
		}
	}

	t.Run("first beacon of the day is unique", func(t *testing.T) {
		receipt, err := col.TrackPageView(input("https://example.com/"))
		require.NoError(t, err)
		assert.True(t, receipt.Tracked)
		assert.True(t, receipt.Unique)
		assert.Equal(t, "example.com", receipt.Domain)
	})

	t.Run("same visitor on another page is not unique", func(t *testing.T) {
		receipt, err := col.TrackPageView(input("https://example.com/pricing"))
		require.NoError(t, err)
		assert.True(t, receipt.Tracked)
		assert.False(t, receipt.Unique, "uniqueness is per site per day, not per URL")
	})

	t.Run("returning to the first page stays non-unique", func(t *testing.T) {
		receipt, err := col.TrackPageView(input("https://example.com/"))
		require.NoError(t, err)
		assert.False(t, receipt.Unique)
	})

	t.Run("event log and aggregates agree", func(t *testing.T) {
		views, uniqueVisitors, err := events.CountInWindow(db, time.Time{}, "example.com")
		require.NoError(t, err)
		assert.EqualValues(t, 3, views)
		assert.EqualValues(t, 1, uniqueVisitors)

		home, err := aggregates.GetByURL(db, "https://example.com/")
		require.NoError(t, err)
		assert.EqualValues(t, 2, home.Views)
		assert.EqualValues(t, 1, home.UniqueViews)

		pricing, err := aggregates.GetByURL(db, "https://example.com/pricing")
		require.NoError(t, err)
		assert.EqualValues(t, 1, pricing.Views)
		assert.EqualValues(t, 0, pricing.UniqueViews)
	})

	t.Run("next day the visitor is unique again", func(t *testing.T) {
		in := input("https://example.com/")
		in.Timestamp = ts.AddDate(0, 0, 1)
		receipt, err := col.TrackPageView(in)
		require.NoError(t, err)
		assert.True(t, receipt.Unique)
	})

	t.Run("www spelling maps onto the same tracked domain", func(t *testing.T) {
		receipt, err := col.TrackPageView(input("https://www.example.com/landing"))
		require.NoError(t, err)
		assert.Equal(t, "example.com", receipt.Domain)
	})
}

func TestTrackPageViewRejections(t *testing.T) {
	cfg := testsupport.GetConfig(t)
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.RegisterTestDomain(t, db, "example.com")
	col := collector.New(dbManager, logger, cfg, nil)

	t.Run("missing url is a validation error", func(t *testing.T) {
		_, err := col.TrackPageView(&collector.PageViewInput{UserAgent: desktopUA})
		var invalid *collector.InvalidBeaconError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("url without hostname is a validation error", func(t *testing.T) {
		_, err := col.TrackPageView(&collector.PageViewInput{URL: "/relative/path", UserAgent: desktopUA})
		var invalid *collector.InvalidBeaconError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("unlisted domain is a policy rejection without writes", func(t *testing.T) {
		_, err := col.TrackPageView(&collector.PageViewInput{
			URL:        "https://intruder.com/",
			ClientAddr: "203.0.113.9",
			UserAgent:  desktopUA,
		})
		var notAllowed *domains.DomainNotAllowedError
		require.ErrorAs(t, err, &notAllowed)
		assert.Equal(t, "intruder.com", notAllowed.Domain)

		var eventCount int64
		require.NoError(t, db.Model(&events.Event{}).Count(&eventCount).Error)
		assert.Zero(t, eventCount)

		var ledgerCount int64
		require.NoError(t, db.Model(&visitors.LedgerEntry{}).Count(&ledgerCount).Error)
		assert.Zero(t, ledgerCount)
	})

	t.Run("bot beacons are acknowledged but not stored", func(t *testing.T) {
		receipt, err := col.TrackPageView(&collector.PageViewInput{
			URL:        "https://example.com/",
			ClientAddr: "203.0.113.9",
			UserAgent:  botUA,
		})
		require.NoError(t, err)
		assert.False(t, receipt.Tracked)

		var eventCount int64
		require.NoError(t, db.Model(&events.Event{}).Count(&eventCount).Error)
		assert.Zero(t, eventCount)
	})
}

func TestTrackDuration(t *testing.T) {
	cfg := testsupport.GetConfig(t)
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.RegisterTestDomain(t, db, "example.com")
	col := collector.New(dbManager, logger, cfg, nil)

	t.Run("accumulates active time", func(t *testing.T) {
		require.NoError(t, col.TrackDuration(&collector.DurationInput{URL: "https://example.com/", Seconds: 12.4}))
		require.NoError(t, col.TrackDuration(&collector.DurationInput{URL: "https://example.com/", Seconds: 7.6}))

		agg, err := aggregates.GetByURL(db, "https://example.com/")
		require.NoError(t, err)
		assert.EqualValues(t, 20, agg.TotalActiveSeconds)
	})

	t.Run("rejects non-positive durations", func(t *testing.T) {
		err := col.TrackDuration(&collector.DurationInput{URL: "https://example.com/", Seconds: -1})
		assert.ErrorIs(t, err, aggregates.ErrInvalidDuration)
	})

	t.Run("rejects unlisted domains", func(t *testing.T) {
		err := col.TrackDuration(&collector.DurationInput{URL: "https://intruder.com/", Seconds: 5})
		var notAllowed *domains.DomainNotAllowedError
		assert.ErrorAs(t, err, &notAllowed)
	})
}
