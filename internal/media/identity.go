package media

import (
	"errors"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/pkg/logger"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

var log = logger.Get("Identity")

// correlationTitleSimilarity is the Jaro-Winkler score below which a
// correlated pair of titles is considered suspicious and logged.
const correlationTitleSimilarity = 0.5

type (
	itemStore interface {
		Get(db database.Queryable, key Key) (*Item, error)
		Save(db database.Queryable, item *Item) error
	}

	mappingStore interface {
		SavePair(db database.Queryable, primaryID uuid.UUID, secondaryID uuid.UUID) error
	}

	// Applied pairs the list entry with the canonical item it was
	// upserted to, along with the pre-existing row (nil for brand-new
	// items). Downstream pipeline stages consume this instead of
	// re-reading the store.
	Applied struct {
		Item     Item
		Entry    ListEntry
		Existing *Item
	}

	// IdentityMapper unifies normalized list entries in to canonical
	// media items, and applies cross-service correlation pairs as
	// symmetric ID mappings.
	IdentityMapper struct {
		validate *validator.Validate
		items    itemStore
		mappings mappingStore
	}
)

func NewIdentityMapper(items itemStore, mappings mappingStore) *IdentityMapper {
	return &IdentityMapper{
		validate: validator.New(),
		items:    items,
		mappings: mappings,
	}
}

// Apply upserts a batch of normalized list entries. Entries which fail
// validation are rejected individually - the rest of the batch is
// unaffected. An entry referencing an unknown identity is not an error;
// it becomes a brand-new canonical item.
func (mapper *IdentityMapper) Apply(db database.Queryable, entries []ListEntry) []Applied {
	applied := make([]Applied, 0, len(entries))
	for _, entry := range entries {
		if err := mapper.validate.Struct(&entry); err != nil {
			log.Warnf("Rejecting malformed list entry (service=%s id=%q): %s\n", entry.Service, entry.ServiceID, err.Error())
			continue
		}

		existing, err := mapper.items.Get(db, entry.Key())
		if err != nil && !errors.Is(err, ErrItemNotFound) {
			log.Errorf("Failed to look up media item %v: %s\n", entry.Key(), err.Error())
			continue
		}

		item := entryToItem(entry)
		if err := mapper.items.Save(db, &item); err != nil {
			log.Errorf("Failed to upsert media item %v: %s\n", entry.Key(), err.Error())
			continue
		}

		applied = append(applied, Applied{Item: item, Entry: entry, Existing: existing})
	}

	return applied
}

// ApplyCorrelations links canonical items using resolver-supplied
// cross-reference pairs. A pair referencing an item Shiori has never
// seen is skipped (and logged); the collaborator correlation is treated
// as authoritative, so dissimilar titles still link, but loudly.
func (mapper *IdentityMapper) ApplyCorrelations(db database.Queryable, correlations []Correlation) {
	for _, correlation := range correlations {
		a, errA := mapper.items.Get(db, correlation.A)
		b, errB := mapper.items.Get(db, correlation.B)
		if errA != nil || errB != nil {
			log.Warnf("Skipping correlation %v <-> %v: one or both items unknown\n", correlation.A, correlation.B)
			continue
		}

		if !titlesLookAlike(a.Title(), b.Title()) {
			log.Warnf("Correlated items %v and %v have dissimilar titles (%q vs %q); linking anyway\n",
				correlation.A, correlation.B, a.Title(), b.Title())
		}

		if err := mapper.mappings.SavePair(db, a.ID, b.ID); err != nil {
			log.Errorf("Failed to store ID mapping for correlation %v <-> %v: %s\n", correlation.A, correlation.B, err.Error())
		}
	}
}

// titlesLookAlike reports whether the two titles plausibly belong to
// the same series: either one fuzzily contains the other (after
// unicode/case folding), or their Jaro-Winkler similarity clears the
// threshold.
func titlesLookAlike(a string, b string) bool {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}

	if fuzzy.MatchNormalizedFold(short, long) {
		return true
	}

	similarity := strutil.Similarity(normalizeTitle(a), normalizeTitle(b), metrics.NewJaroWinkler())
	return similarity >= correlationTitleSimilarity
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

func entryToItem(entry ListEntry) Item {
	item := Item{
		Key:            entry.Key(),
		Subtype:        entry.Subtype,
		RomajiTitle:    entry.RomajiTitle,
		EnglishTitle:   entry.EnglishTitle,
		CoverURL:       entry.CoverURL,
		ReleasingState: entry.ReleasingState,
	}
	if item.Subtype == "" {
		item.Subtype = SubTypeUnknown
	}
	if item.ReleasingState == "" {
		item.ReleasingState = StateUnknown
	}

	if entry.NextAiring != nil {
		episode := entry.NextAiring.Episode
		airingAt := entry.NextAiring.AiringAt
		item.NextEpisode = &episode
		item.NextEpisodeAiringTime = &airingAt
	}

	return item
}
