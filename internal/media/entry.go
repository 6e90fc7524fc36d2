package media

// ListEntry is one normalized entry from an external list source. The
// core never speaks the source's wire protocol; collaborators hand
// these over already flattened. Tagged for validation as source data
// is untrusted (see IdentityMapper).
type ListEntry struct {
	Service   ListService `validate:"required,oneof=anilist mangadex myanimelist kitsu"`
	ServiceID string      `validate:"required"`
	Type      MediaType   `validate:"required,oneof=anime manga"`
	Subtype   MediaSubType

	RomajiTitle    string `validate:"required"`
	EnglishTitle   *string
	CoverURL       string
	ReleasingState ReleasingState

	// TotalCount is the service-declared total episode/chapter count.
	// Nil when the service has no authoritative figure.
	TotalCount   *int
	TotalVolumes *int

	Progress       int `validate:"gte=0"`
	Score          *int
	ConsumingState ConsumingState

	NextAiring *AiringSchedule
}

// AiringSchedule describes the next episode a service expects to air.
type AiringSchedule struct {
	Episode  int `validate:"gt=0"`
	AiringAt int64
}

func (entry *ListEntry) Key() Key {
	return Key{Service: entry.Service, ServiceID: entry.ServiceID, Type: entry.Type}
}

// Correlation is a cross-reference pair supplied by an external
// resolver, asserting that the two keys identify the same series on
// different services.
type Correlation struct {
	A Key
	B Key
}
