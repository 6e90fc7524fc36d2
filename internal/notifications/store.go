package notifications

import (
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/media"
)

type (
	// Notification is the per-(user, item) watermark recording the last
	// release count the user has been told about. It only ever moves
	// forwards: a row is never rewound, the SQL upsert guards against it.
	Notification struct {
		UserID     uuid.UUID `db:"user_id"`
		ItemID     uuid.UUID `db:"item_id"`
		LastUpdate int       `db:"last_update"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
	}

	// TrackedItem is one row of the reconciliation working set: a media
	// item the user is actively consuming, joined with their progress,
	// any chapter guess, and any existing watermark.
	TrackedItem struct {
		media.Item
		Progress  int  `db:"progress"`
		Guess     *int `db:"guess"`
		Watermark *int `db:"watermark"`
	}

	Store struct{}
)

func NewStore() *Store {
	return &Store{}
}

// ListTracked assembles the reconciliation working set for one user:
// every item they are currently consuming (or repeating), with the
// chapter guess and notification watermark joined in where present.
func (store *Store) ListTracked(db database.Queryable, userID uuid.UUID) ([]*TrackedItem, error) {
	query, args, err := squirrel.
		Select("media_items.*", "media_user_states.progress",
			"manga_chapter_guesses.guess AS guess",
			"media_notifications.last_update AS watermark").
		From("media_user_states").
		InnerJoin(`media_items ON media_items.service = media_user_states.service
			AND media_items.service_id = media_user_states.service_id
			AND media_items.media_type = media_user_states.media_type`).
		LeftJoin("manga_chapter_guesses ON manga_chapter_guesses.item_id = media_items.id").
		LeftJoin(`media_notifications ON media_notifications.item_id = media_items.id
			AND media_notifications.user_id = media_user_states.user_id`).
		Where("media_user_states.user_id = ?", userID).
		Where(squirrel.Eq{"media_user_states.consuming_state": []media.ConsumingState{media.Current, media.Repeating}}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct tracked items query: %w", err)
	}

	var tracked []*TrackedItem
	if err := db.Select(&tracked, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return tracked, nil
}

// Advance moves the user's watermark for an item up to latest, creating
// the row if this is the first notification for the pair. An update
// which would move the watermark backwards is silently dropped.
func (store *Store) Advance(db database.Queryable, userID uuid.UUID, itemID uuid.UUID, latest int) error {
	_, err := db.Exec(`
		INSERT INTO media_notifications(user_id, item_id, last_update, created_at, updated_at)
		VALUES($1, $2, $3, current_timestamp, current_timestamp)
		ON CONFLICT(user_id, item_id) DO UPDATE SET
			last_update=EXCLUDED.last_update,
			updated_at=current_timestamp
		WHERE media_notifications.last_update < EXCLUDED.last_update
	`, userID, itemID, latest)
	if err != nil {
		return fmt.Errorf("failed to advance notification watermark (user %s, item %s): %w", userID, itemID, err)
	}

	return nil
}

// PurgeStale removes the user's watermarks for any item no longer in
// their tracked set. With no tracked items at all, every watermark for
// the user is removed.
func (store *Store) PurgeStale(db database.Queryable, userID uuid.UUID, trackedItemIDs []uuid.UUID) error {
	if len(trackedItemIDs) == 0 {
		_, err := db.Exec(`DELETE FROM media_notifications WHERE user_id=$1`, userID)
		return err
	}

	return database.InExec(db, `
		DELETE FROM media_notifications WHERE user_id=? AND item_id NOT IN (?)
	`, userID, trackedItemIDs)
}

func (store *Store) ListForUser(db database.Queryable, userID uuid.UUID) ([]*Notification, error) {
	var notifications []*Notification
	if err := db.Select(&notifications, `SELECT * FROM media_notifications WHERE user_id=$1`, userID); err != nil {
		return nil, err
	}

	return notifications, nil
}
