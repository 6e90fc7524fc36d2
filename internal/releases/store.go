package releases

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/media"
)

// GuessStore persists chapter guesses one-to-one with their manga
// items. The SQL upsert enforces the monotone merge a second time, so
// a racing writer can never shrink a stored guess.
type GuessStore struct{}

func NewGuessStore() *GuessStore {
	return &GuessStore{}
}

func (store *GuessStore) Save(db database.Queryable, itemID uuid.UUID, guess int) error {
	_, err := db.Exec(`
		INSERT INTO manga_chapter_guesses(item_id, guess, updated_at)
		VALUES($1, $2, current_timestamp)
		ON CONFLICT(item_id) DO UPDATE SET
			guess=GREATEST(manga_chapter_guesses.guess, EXCLUDED.guess),
			updated_at=current_timestamp
	`, itemID, guess)
	if err != nil {
		return fmt.Errorf("failed to upsert chapter guess for item %s: %w", itemID, err)
	}

	return nil
}

func (store *GuessStore) Get(db database.Queryable, itemID uuid.UUID) (*int, error) {
	var guess media.ChapterGuess
	if err := db.Get(&guess, `SELECT item_id, guess, updated_at FROM manga_chapter_guesses WHERE item_id=$1`, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &guess.Guess, nil
}

// ListAll returns every stored guess keyed by item ID. The sync cycle
// loads this snapshot once per cycle and threads it through the release
// tracking stage rather than re-querying per item.
func (store *GuessStore) ListAll(db database.Queryable) (map[uuid.UUID]int, error) {
	var guesses []media.ChapterGuess
	if err := db.Select(&guesses, `SELECT item_id, guess, updated_at FROM manga_chapter_guesses`); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]int, len(guesses))
	for _, g := range guesses {
		out[g.ItemID] = g.Guess
	}

	return out, nil
}
