package releases

import (
	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/media"
	"github.com/hbomb79/Shiori/pkg/logger"
)

var log = logger.Get("Releases")

type (
	releaseWriter interface {
		UpdateReleases(db database.Queryable, itemID uuid.UUID, latest *int, latestVolume *int) error
	}

	guessWriter interface {
		Save(db database.Queryable, itemID uuid.UUID, guess int) error
	}

	estimator interface {
		Estimate(db database.Queryable, item *media.Item, prior *int, batchProgress int) (*int, error)
	}

	// Snapshot carries the per-cycle aggregations the tracker consults:
	// the airing feed's episodes-aired counts and the previous cycle's
	// chapter guesses. Both are read once at the start of a cycle and
	// passed through by value.
	Snapshot struct {
		AiringEpisodes map[media.Key]int
		Guesses        map[uuid.UUID]int
	}

	// Tracker updates the latest-release counters of canonical items
	// after the identity mapper has upserted them, filling manga gaps
	// via the guess engine.
	Tracker struct {
		items   releaseWriter
		guesses guessWriter
		engine  estimator
	}
)

func NewTracker(items releaseWriter, guesses guessWriter, engine estimator) *Tracker {
	return &Tracker{items: items, guesses: guesses, engine: engine}
}

// Update walks the applied entries of a sync cycle and writes the
// merged release counters for each. Failures are isolated per item.
func (tracker *Tracker) Update(db database.Queryable, applied []media.Applied, snapshot Snapshot) {
	for i := range applied {
		var err error
		switch applied[i].Item.Type {
		case media.Anime:
			err = tracker.updateAnime(db, &applied[i], snapshot)
		case media.Manga:
			err = tracker.updateManga(db, &applied[i], snapshot)
		}

		if err != nil {
			log.Errorf("Failed to update releases for %v: %s\n", applied[i].Item.Key, err.Error())
		}
	}
}

// updateAnime resolves the latest episode through a strict priority
// chain: the airing feed's episodes-aired count, then the next-airing
// schedule minus one, then the service's static total. First available
// source wins.
func (tracker *Tracker) updateAnime(db database.Queryable, applied *media.Applied, snapshot Snapshot) error {
	var aired *int
	if count, ok := snapshot.AiringEpisodes[applied.Item.Key]; ok {
		aired = &count
	}

	latest := AnimeLatest(applied.Entry, aired)
	merged := MergeAuthoritative(existingLatest(applied), latest)

	return tracker.items.UpdateReleases(db, applied.Item.ID, merged, existingVolume(applied))
}

// updateManga resolves the latest chapter: the service-declared total
// if present, otherwise the carried-forward guess, otherwise a freshly
// computed one. Guesses live in their own table and never masquerade
// as an authoritative latest_release.
func (tracker *Tracker) updateManga(db database.Queryable, applied *media.Applied, snapshot Snapshot) error {
	merged := MergeAuthoritative(existingLatest(applied), applied.Entry.TotalCount)
	mergedVolumes := MergeAuthoritative(existingVolume(applied), applied.Entry.TotalVolumes)

	if err := tracker.items.UpdateReleases(db, applied.Item.ID, merged, mergedVolumes); err != nil {
		return err
	}

	if merged != nil {
		return nil
	}

	var prior *int
	if g, ok := snapshot.Guesses[applied.Item.ID]; ok {
		prior = &g
	}

	estimate, err := tracker.engine.Estimate(db, &applied.Item, prior, applied.Entry.Progress)
	if err != nil {
		return err
	}

	if next := MergeGuess(prior, estimate); next != nil {
		return tracker.guesses.Save(db, applied.Item.ID, *next)
	}

	return nil
}

// AnimeLatest is the pure anime priority chain, exposed for testing.
func AnimeLatest(entry media.ListEntry, aired *int) *int {
	if aired != nil {
		return aired
	}
	if entry.NextAiring != nil {
		v := entry.NextAiring.Episode - 1
		return &v
	}

	return entry.TotalCount
}

func existingLatest(applied *media.Applied) *int {
	if applied.Existing == nil {
		return nil
	}
	return applied.Existing.LatestRelease
}

func existingVolume(applied *media.Applied) *int {
	if applied.Existing == nil {
		return nil
	}
	return applied.Existing.LatestVolumeRelease
}
