package releases

import (
	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/media"
)

type (
	// Signals are the inputs available to a chapter guess: the prior
	// guess for the item, progress counters of users currently reading
	// it, and release counts of the same series on linked services.
	Signals struct {
		Prior          *int
		ReaderProgress []int
		SiblingCounts  []int
	}

	readerProgress interface {
		CurrentReaderProgress(db database.Queryable, key media.Key) ([]int, error)
	}

	relatedItems interface {
		RelatedItems(db database.Queryable, itemID uuid.UUID) ([]*media.Item, error)
	}

	// GuessEngine estimates a chapter count for manga items lacking
	// authoritative data. Estimates are strictly lower priority than
	// any authoritative count; callers consult them only when
	// MergeAuthoritative yields nothing.
	GuessEngine struct {
		progress readerProgress
		mappings relatedItems
	}
)

func NewGuessEngine(progress readerProgress, mappings relatedItems) *GuessEngine {
	return &GuessEngine{progress: progress, mappings: mappings}
}

// Estimate gathers the signals for the given item and returns the
// maximum plausible chapter number, or nil when no signal exists. A
// zero estimate is never produced - absence of data is absence, not
// zero.
func (engine *GuessEngine) Estimate(db database.Queryable, item *media.Item, prior *int, batchProgress int) (*int, error) {
	signals := Signals{Prior: prior}

	readers, err := engine.progress.CurrentReaderProgress(db, item.Key)
	if err != nil {
		return nil, err
	}
	signals.ReaderProgress = append(readers, batchProgress)

	siblings, err := engine.mappings.RelatedItems(db, item.ID)
	if err != nil {
		return nil, err
	}
	for _, sibling := range siblings {
		if count := sibling.CurrentRelease(); count != nil {
			signals.SiblingCounts = append(signals.SiblingCounts, *count)
		}
	}

	return EstimateFromSignals(signals), nil
}

// EstimateFromSignals is the pure core of the guess engine: the
// maximum of every non-zero signal, or nil when none exist.
func EstimateFromSignals(signals Signals) *int {
	var best *int
	consider := func(v int) {
		if v <= 0 {
			return
		}
		if best == nil || v > *best {
			value := v
			best = &value
		}
	}

	if signals.Prior != nil {
		consider(*signals.Prior)
	}
	for _, v := range signals.ReaderProgress {
		consider(v)
	}
	for _, v := range signals.SiblingCounts {
		consider(v)
	}

	return best
}
