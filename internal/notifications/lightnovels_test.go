package notifications_test

import (
	"context"
	"testing"
	"time"

	"github.com/hbomb79/Shiori/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

type fakeLightNovelFeed struct {
	releases []notifications.LightNovelRelease
	err      error
}

func (feed *fakeLightNovelFeed) Releases(context.Context) ([]notifications.LightNovelRelease, error) {
	return feed.releases, feed.err
}

func lnRelease(title string, volume string, year int, month time.Month, day int) notifications.LightNovelRelease {
	return notifications.LightNovelRelease{Title: title, Volume: volume, Year: year, Month: month, Day: day}
}

func Test_FormatLightNovelListing_FiltersAndOrdersByDay(t *testing.T) {
	t.Parallel()

	// Deliberately unsorted and spanning multiple months; only March
	// 2021 entries should render, ordered by release day.
	releases := []notifications.LightNovelRelease{
		lnRelease("Re:Zero", "Vol. 15", 2021, time.March, 25),
		lnRelease("Overlord", "Vol. 14", 2021, time.March, 3),
		lnRelease("Spice and Wolf", "Vol. 22", 2021, time.April, 14),
		lnRelease("Konosuba", "Vol. 17", 2021, time.March, 12),
		lnRelease("Overlord", "Vol. 13", 2020, time.March, 9),
	}

	message := notifications.FormatLightNovelListing(releases, 2021, time.March)

	assert.Equal(t, "Notifications", message.Subject)
	golden.Assert(t, message.Body, "ln_listing.golden")
}

func Test_FormatLightNovelListing_EmptyMonthStillRenders(t *testing.T) {
	t.Parallel()

	message := notifications.FormatLightNovelListing(nil, 2021, time.June)
	assert.Equal(t, "Light Novel Releases June 2021\n\n", message.Body)
}

func Test_LightNovelLister_ListMonth(t *testing.T) {
	t.Parallel()

	feed := &fakeLightNovelFeed{releases: []notifications.LightNovelRelease{
		lnRelease("Overlord", "Vol. 14", 2021, time.March, 3),
	}}
	messenger := &fakeMessenger{}
	lister := notifications.NewLightNovelLister(feed, messenger)

	require.NoError(t, lister.ListMonth(context.Background(), "alice", 2021, time.March))

	sent := messenger.sent["alice"]
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "3: Overlord Vol. 14")
}

func Test_LightNovelLister_FeedFailurePropagates(t *testing.T) {
	t.Parallel()

	feed := &fakeLightNovelFeed{err: errDelivery}
	messenger := &fakeMessenger{}
	lister := notifications.NewLightNovelLister(feed, messenger)

	require.Error(t, lister.ListMonth(context.Background(), "bob", 2021, time.March))
	assert.Empty(t, messenger.sent, "a failed feed load must not send a partial listing")
}
