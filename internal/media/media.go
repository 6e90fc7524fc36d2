package media

import (
	"time"

	"github.com/google/uuid"
)

type (
	// ListService is the closed enumeration of external list services
	// Shiori understands. Adding a service means adding a constant here
	// and teaching ServiceURL about it.
	ListService string

	MediaType      string
	MediaSubType   string
	ReleasingState string
	ConsumingState string
)

const (
	Anilist     ListService = "anilist"
	Mangadex    ListService = "mangadex"
	MyAnimeList ListService = "myanimelist"
	Kitsu       ListService = "kitsu"
)

const (
	Anime MediaType = "anime"
	Manga MediaType = "manga"
)

const (
	SubTypeTV         MediaSubType = "tv"
	SubTypeTVShort    MediaSubType = "tv_short"
	SubTypeMovie      MediaSubType = "movie"
	SubTypeSpecial    MediaSubType = "special"
	SubTypeOVA        MediaSubType = "ova"
	SubTypeONA        MediaSubType = "ona"
	SubTypeManga      MediaSubType = "manga"
	SubTypeLightNovel MediaSubType = "novel"
	SubTypeOneShot    MediaSubType = "one_shot"
	SubTypeUnknown    MediaSubType = "unknown"
)

const (
	NotYetReleased ReleasingState = "not_yet_released"
	Releasing      ReleasingState = "releasing"
	Finished       ReleasingState = "finished"
	Hiatus         ReleasingState = "hiatus"
	Cancelled      ReleasingState = "cancelled"
	StateUnknown   ReleasingState = "unknown"
)

const (
	Current   ConsumingState = "current"
	Planned   ConsumingState = "planned"
	Completed ConsumingState = "completed"
	Dropped   ConsumingState = "dropped"
	Paused    ConsumingState = "paused"
	Repeating ConsumingState = "repeating"
)

func MediaTypes() []MediaType {
	return []MediaType{Anime, Manga}
}

// UnitLabel is the fixed lexical mapping from a media type to the
// label of its release unit.
func (t MediaType) UnitLabel() string {
	switch t {
	case Anime:
		return "Episode"
	case Manga:
		return "Chapter"
	}

	return "Release"
}

// Key is the canonical identity of a media item: the tuple of
// (service, service id, media type). It is comparable, and so usable
// as a map key when aggregating per-cycle snapshots.
type Key struct {
	Service   ListService `db:"service"`
	ServiceID string      `db:"service_id"`
	Type      MediaType   `db:"media_type"`
}

// Item is the canonical record for a series as known to a single list
// service. The identity Key is immutable once saved; every other field
// is refreshed on each sync cycle.
type Item struct {
	ID uuid.UUID `db:"id"`
	Key

	Subtype        MediaSubType   `db:"media_subtype"`
	RomajiTitle    string         `db:"romaji_title"`
	EnglishTitle   *string        `db:"english_title"`
	CoverURL       string         `db:"cover_url"`
	ReleasingState ReleasingState `db:"releasing_state"`

	LatestRelease         *int   `db:"latest_release"`
	LatestVolumeRelease   *int   `db:"latest_volume_release"`
	NextEpisode           *int   `db:"next_episode"`
	NextEpisodeAiringTime *int64 `db:"next_episode_airing_time"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CurrentRelease derives the most current release for this item. The
// ordering is load-bearing and mirrored by the notification logic:
// a known airing schedule wins, then volumes, then chapters/episodes.
// Nil means no release information is known at all.
func (item *Item) CurrentRelease() *int {
	if item.NextEpisode != nil {
		v := *item.NextEpisode - 1
		return &v
	}
	if item.LatestVolumeRelease != nil {
		return item.LatestVolumeRelease
	}
	if item.LatestRelease != nil {
		return item.LatestRelease
	}

	return nil
}

// Title returns the English title where one is known, falling back to
// the romaji title otherwise.
func (item *Item) Title() string {
	if item.EnglishTitle != nil && *item.EnglishTitle != "" {
		return *item.EnglishTitle
	}

	return item.RomajiTitle
}

// NextEpisodeAt returns the airing time of the next episode, if known.
func (item *Item) NextEpisodeAt() *time.Time {
	if item.NextEpisodeAiringTime == nil {
		return nil
	}

	t := time.Unix(*item.NextEpisodeAiringTime, 0)
	return &t
}

// IDMapping links two Items which represent the same series on
// different services. Mappings are stored symmetrically: linking A to B
// persists both the (A, B) and (B, A) rows.
type IDMapping struct {
	ID              uuid.UUID `db:"id"`
	PrimaryItemID   uuid.UUID `db:"primary_item_id"`
	SecondaryItemID uuid.UUID `db:"secondary_item_id"`
}

// ChapterGuess is a non-authoritative chapter count estimate for a
// manga item. It is one-to-one with its item and strictly lower
// priority than any authoritative latest_release value.
type ChapterGuess struct {
	ItemID    uuid.UUID `db:"item_id"`
	Guess     int       `db:"guess"`
	UpdatedAt time.Time `db:"updated_at"`
}
