package notifications

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hbomb79/Shiori/internal/media"
)

// digestThreshold is the most deltas a media type can have before the
// per-item messages collapse in to a single digest.
const digestThreshold = 5

type (
	// Delta is a computed difference between what a user has been told
	// about an item and what is now known to be released. ReleaseDiff is
	// measured against the notification watermark (what triggers a send),
	// UserDiff against the user's own progress (what the message shows).
	Delta struct {
		Item        media.Item
		Latest      int
		Baseline    int
		Progress    int
		ReleaseDiff int
		UserDiff    int
	}

	// Message is a rendered notification ready for delivery.
	Message struct {
		Subject string
		Body    string
	}
)

// FormatMessages renders the given deltas in to deliverable messages.
// Deltas are grouped per media type; a small group gets one detailed
// message per item, a large group collapses in to a digest so a user
// returning from a long absence is not flooded.
func FormatMessages(deltas []Delta) []Message {
	groups := make(map[media.MediaType][]Delta)
	for _, delta := range deltas {
		groups[delta.Item.Type] = append(groups[delta.Item.Type], delta)
	}

	var messages []Message
	for _, mediaType := range media.MediaTypes() {
		group := groups[mediaType]
		if len(group) == 0 {
			continue
		}

		sort.SliceStable(group, func(i, j int) bool { return group[i].UserDiff > group[j].UserDiff })
		if len(group) > digestThreshold {
			messages = append(messages, digestMessage(mediaType, group))
		} else {
			for _, delta := range group {
				messages = append(messages, detailMessage(delta))
			}
		}
	}

	return messages
}

func detailMessage(delta Delta) Message {
	unit := delta.Item.Type.UnitLabel()
	return Message{
		Subject: "Notification",
		Body: fmt.Sprintf(
			"%s %s %d was released\n\nCurrent Progress: %d/%d (+%d)\n\n%s",
			delta.Item.Title(), unit, delta.Latest,
			delta.Progress, delta.Latest, delta.UserDiff,
			delta.Item.URL(),
		),
	}
}

func digestMessage(mediaType media.MediaType, group []Delta) Message {
	unit := mediaType.UnitLabel()

	builder := strings.Builder{}
	fmt.Fprintf(&builder, "New %s %ss:\n\n", typeHeading(mediaType), unit)
	for _, delta := range group {
		fmt.Fprintf(&builder, "[+%d] %s %s %d\n", delta.UserDiff, delta.Item.Title(), unit, delta.Latest)
	}

	return Message{Subject: "Notifications", Body: builder.String()}
}

func typeHeading(mediaType media.MediaType) string {
	switch mediaType {
	case media.Anime:
		return "Anime"
	case media.Manga:
		return "Manga"
	}

	return "Media"
}
