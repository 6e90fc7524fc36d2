package notifications_test

import (
	"testing"

	"github.com/hbomb79/Shiori/internal/media"
	"github.com/hbomb79/Shiori/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

func intPtr(v int) *int { return &v }

func newDelta(mediaType media.MediaType, serviceID string, title string, latest int, progress int) notifications.Delta {
	return notifications.Delta{
		Item: media.Item{
			Key:         media.Key{Service: media.Anilist, ServiceID: serviceID, Type: mediaType},
			RomajiTitle: title,
		},
		Latest:      latest,
		Baseline:    progress,
		Progress:    progress,
		ReleaseDiff: latest - progress,
		UserDiff:    latest - progress,
	}
}

func Test_FormatMessages_DetailedWhenFew(t *testing.T) {
	t.Parallel()

	deltas := []notifications.Delta{
		newDelta(media.Anime, "121", "Fullmetal Alchemist", 51, 45),
		newDelta(media.Anime, "20", "Naruto", 220, 210),
	}

	messages := notifications.FormatMessages(deltas)

	require.Len(t, messages, 2, "expected one detailed message per delta")
	for _, message := range messages {
		assert.Equal(t, "Notification", message.Subject)
	}

	// Detailed messages are ordered by how far behind the user is.
	assert.Contains(t, messages[0].Body, "Naruto Episode 220", "furthest-behind delta must render first")
	golden.Assert(t, messages[1].Body, "detail_message.golden")
}

func Test_FormatMessages_DigestWhenMany(t *testing.T) {
	t.Parallel()

	// Deliberately unsorted; the digest must order by how far behind
	// the user is.
	deltas := []notifications.Delta{
		newDelta(media.Manga, "4", "Vinland Saga", 210, 180),
		newDelta(media.Manga, "1", "Berserk", 374, 314),
		newDelta(media.Manga, "6", "Dandadan", 160, 150),
		newDelta(media.Manga, "2", "One Piece", 1100, 1050),
		newDelta(media.Manga, "5", "Frieren", 130, 110),
		newDelta(media.Manga, "3", "Vagabond", 327, 287),
	}

	messages := notifications.FormatMessages(deltas)

	require.Len(t, messages, 1, "expected six deltas to collapse in to one digest")
	assert.Equal(t, "Notifications", messages[0].Subject)
	golden.Assert(t, messages[0].Body, "digest_message.golden")
}

func Test_FormatMessages_ThresholdBoundary(t *testing.T) {
	t.Parallel()

	deltas := make([]notifications.Delta, 0, 5)
	for _, title := range []string{"A", "B", "C", "D", "E"} {
		deltas = append(deltas, newDelta(media.Anime, title, title, 10, 9))
	}

	assert.Len(t, notifications.FormatMessages(deltas), 5, "five deltas still render individually")

	deltas = append(deltas, newDelta(media.Anime, "F", "F", 10, 9))
	assert.Len(t, notifications.FormatMessages(deltas), 1, "six deltas collapse to a digest")
}

func Test_FormatMessages_MediaTypesGroupIndependently(t *testing.T) {
	t.Parallel()

	var deltas []notifications.Delta
	deltas = append(deltas,
		newDelta(media.Anime, "1", "Show One", 12, 10),
		newDelta(media.Anime, "2", "Show Two", 8, 7),
	)
	for _, title := range []string{"M1", "M2", "M3", "M4", "M5", "M6"} {
		deltas = append(deltas, newDelta(media.Manga, title, title, 20, 19))
	}

	messages := notifications.FormatMessages(deltas)

	require.Len(t, messages, 3, "expected two anime details and one manga digest")
	assert.Equal(t, "Notification", messages[0].Subject)
	assert.Equal(t, "Notification", messages[1].Subject)
	assert.Equal(t, "Notifications", messages[2].Subject)
}

func Test_FormatMessages_NoDeltas(t *testing.T) {
	t.Parallel()
	assert.Empty(t, notifications.FormatMessages(nil))
}
