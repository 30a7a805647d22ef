package earnings_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/earnings-engine/earnings"
)

type countingReasons struct {
	calls   int
	reasons []earnings.DowntimeReason
}

func (f *countingReasons) DowntimeReasons(ctx context.Context) ([]earnings.DowntimeReason, error) {
	f.calls++
	return append([]earnings.DowntimeReason(nil), f.reasons...), nil
}

type countingDefaults struct {
	calls    int
	defaults map[earnings.Date]earnings.DefaultParameters
}

func (f *countingDefaults) DefaultsForDate(ctx context.Context, date earnings.Date) (*earnings.DefaultParameters, error) {
	f.calls++
	d, ok := f.defaults[date]
	if !ok {
		return nil, earnings.ErrDefaultsNotFound
	}
	return &d, nil
}

func TestCachedReasonFeed_CallersCannotCorruptCache(t *testing.T) {
	ctx := context.Background()
	src := &countingReasons{reasons: []earnings.DowntimeReason{{ID: "weather", Text: "Weather"}}}
	feed := earnings.NewCachedReasonFeed(src, time.Minute)

	// GIVEN: a caller that edits the slice it got back from a cold cache
	first, err := feed.DowntimeReasons(ctx)
	require.NoError(t, err)
	first[0].Text = "Sunshine"

	// WHEN: another caller reads from the warm cache and edits that slice too
	second, err := feed.DowntimeReasons(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Weather", second[0].Text)
	second[0].Text = "Hail"

	// THEN: the cached list is untouched and the source was read once
	third, err := feed.DowntimeReasons(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Weather", third[0].Text)
	assert.Equal(t, 1, src.calls)
}

func TestCachedReasonFeed_Invalidate(t *testing.T) {
	ctx := context.Background()
	src := &countingReasons{reasons: []earnings.DowntimeReason{{ID: "weather", Text: "Weather"}}}
	feed := earnings.NewCachedReasonFeed(src, time.Minute)

	_, err := feed.DowntimeReasons(ctx)
	require.NoError(t, err)

	src.reasons = append(src.reasons, earnings.DowntimeReason{ID: "drone", Text: "Drone failure"})
	cached, err := feed.DowntimeReasons(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	feed.Invalidate()
	fresh, err := feed.DowntimeReasons(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
	assert.Equal(t, 2, src.calls)
}

func TestCachedDefaultsFeed_MissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	day := earnings.MustParseDate("2025-03-10")
	src := &countingDefaults{defaults: map[earnings.Date]earnings.DefaultParameters{}}
	feed := earnings.NewCachedDefaultsFeed(src, time.Minute)

	_, err := feed.DefaultsForDate(ctx, day)
	assert.ErrorIs(t, err, earnings.ErrDefaultsNotFound)

	src.defaults[day] = earnings.DefaultParameters{
		Date:            day,
		AmountPerHaDay:  decimal.RequireFromString("100"),
		MinimumHaPerDay: decimal.RequireFromString("10"),
		AmountIfStopped: decimal.RequireFromString("50"),
	}
	got, err := feed.DefaultsForDate(ctx, day)
	require.NoError(t, err)
	assert.True(t, got.AmountPerHaDay.Equal(decimal.RequireFromString("100")))

	// Edits to the returned value do not leak into the cache.
	got.AmountPerHaDay = decimal.Zero
	again, err := feed.DefaultsForDate(ctx, day)
	require.NoError(t, err)
	assert.True(t, again.AmountPerHaDay.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, 2, src.calls)
}
