package notifications

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

type (
	// LightNovelRelease is one normalized entry from the release
	// calendar feed: a title and volume releasing on a specific day.
	LightNovelRelease struct {
		Title  string
		Volume string
		Day    int
		Month  time.Month
		Year   int
	}

	// LightNovelFeed supplies the light novel release calendar. As with
	// list sources, implementations own the wire protocol and hand over
	// already-normalized entries.
	LightNovelFeed interface {
		Releases(ctx context.Context) ([]LightNovelRelease, error)
	}

	// LightNovelLister renders on-demand monthly release listings. Like
	// CatchUp this is a read-only surface; it holds no state and never
	// touches the notification watermarks.
	LightNovelLister struct {
		feed      LightNovelFeed
		messenger Messenger
	}
)

func NewLightNovelLister(feed LightNovelFeed, messenger Messenger) *LightNovelLister {
	return &LightNovelLister{feed: feed, messenger: messenger}
}

// ListMonth delivers the light novel releases of a single month to the
// given recipient. A month with no releases still sends its (empty)
// listing, so the requester always gets an answer.
func (lister *LightNovelLister) ListMonth(ctx context.Context, recipient string, year int, month time.Month) error {
	releases, err := lister.feed.Releases(ctx)
	if err != nil {
		return fmt.Errorf("failed to load light novel releases: %w", err)
	}

	return lister.messenger.Send(recipient, FormatLightNovelListing(releases, year, month))
}

// FormatLightNovelListing renders the releases falling in the given
// month, ordered by day of release.
func FormatLightNovelListing(releases []LightNovelRelease, year int, month time.Month) Message {
	var monthly []LightNovelRelease
	for _, release := range releases {
		if release.Year == year && release.Month == month {
			monthly = append(monthly, release)
		}
	}
	sort.SliceStable(monthly, func(i, j int) bool { return monthly[i].Day < monthly[j].Day })

	builder := strings.Builder{}
	fmt.Fprintf(&builder, "Light Novel Releases %s %d\n\n", month, year)
	for _, release := range monthly {
		fmt.Fprintf(&builder, "%d: %s %s\n", release.Day, release.Title, release.Volume)
	}

	return Message{Subject: "Notifications", Body: builder.String()}
}
