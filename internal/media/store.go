package media

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/jmoiron/sqlx"
)

var ErrItemNotFound = errors.New("media item does not exist")

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Save upserts the provided Item. Existing rows are matched on the
// identity key (service, service_id, media_type); the identity key of
// an existing row is never changed, and the release counters
// (latest_release, latest_volume_release) are owned by the release
// tracker and left untouched here.
//
// NOTE: the ID of the item may be UPDATED to match the existing DB
// entry (if any).
func (store *Store) Save(db database.Queryable, item *Item) error {
	existing, err := store.Get(db, item.Key)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		return err
	}
	if existing != nil {
		item.ID = existing.ID
	} else if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	_, err = db.NamedExec(`
		INSERT INTO media_items(id, service, service_id, media_type, media_subtype,
			romaji_title, english_title, cover_url, releasing_state,
			next_episode, next_episode_airing_time, created_at, updated_at)
		VALUES(:id, :service, :service_id, :media_type, :media_subtype,
			:romaji_title, :english_title, :cover_url, :releasing_state,
			:next_episode, :next_episode_airing_time, current_timestamp, current_timestamp)
		ON CONFLICT(service, service_id, media_type) DO UPDATE SET
			media_subtype=EXCLUDED.media_subtype,
			romaji_title=EXCLUDED.romaji_title,
			english_title=EXCLUDED.english_title,
			cover_url=EXCLUDED.cover_url,
			releasing_state=EXCLUDED.releasing_state,
			next_episode=EXCLUDED.next_episode,
			next_episode_airing_time=EXCLUDED.next_episode_airing_time,
			updated_at=current_timestamp
	`, item)
	if err != nil {
		return fmt.Errorf("failed to upsert media item %v: %w", item.Key, err)
	}

	return nil
}

// UpdateReleases writes the release counters for an item. Callers are
// expected to have already merged the new values against the stored
// ones (see the releases package); this method writes what it is given.
func (store *Store) UpdateReleases(db database.Queryable, itemID uuid.UUID, latest *int, latestVolume *int) error {
	_, err := db.Exec(`
		UPDATE media_items
		SET latest_release=$2, latest_volume_release=$3, updated_at=current_timestamp
		WHERE id=$1
	`, itemID, latest, latestVolume)
	return err
}

// Get finds an existing item with the identity key provided, returning
// ErrItemNotFound if no such row exists.
func (store *Store) Get(db database.Queryable, key Key) (*Item, error) {
	query, args, err := selectItemBuilder().
		Where("media_items.service=? AND media_items.service_id=? AND media_items.media_type=?",
			key.Service, key.ServiceID, key.Type).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select item query: %w", err)
	}

	var item Item
	if err := db.Get(&item, db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	return &item, nil
}

// GetWithID finds an existing item with the Shiori PK ID provided.
func (store *Store) GetWithID(db database.Queryable, itemID uuid.UUID) (*Item, error) {
	query, args, err := selectItemBuilder().Where("media_items.id=?", itemID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select item query: %w", err)
	}

	var item Item
	if err := db.Get(&item, db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	return &item, nil
}

// ListByType returns every known item of the given media type.
func (store *Store) ListByType(db database.Queryable, mediaType MediaType) ([]*Item, error) {
	query, args, err := selectItemBuilder().Where("media_items.media_type=?", mediaType).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list items query: %w", err)
	}

	var items []*Item
	if err := db.Select(&items, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return items, nil
}

// Delete removes an item and everything it owns - ID mappings, user
// states (and their list memberships), chapter guess and notification
// watermarks - inside a single transaction. The schema FKs restrict
// rather than cascade, so this is the only deletion path.
func (store *Store) Delete(db *sqlx.DB, itemID uuid.UUID) error {
	return database.WrapTx(db, func(tx *sqlx.Tx) error {
		item, err := store.GetWithID(tx, itemID)
		if err != nil {
			return err
		}

		statements := []struct {
			query string
			args  []any
		}{
			{`DELETE FROM media_list_items WHERE service=$1 AND service_id=$2 AND media_type=$3`,
				[]any{item.Service, item.ServiceID, item.Type}},
			{`DELETE FROM media_user_states WHERE service=$1 AND service_id=$2 AND media_type=$3`,
				[]any{item.Service, item.ServiceID, item.Type}},
			{`DELETE FROM media_id_mappings WHERE primary_item_id=$1 OR secondary_item_id=$1`, []any{itemID}},
			{`DELETE FROM manga_chapter_guesses WHERE item_id=$1`, []any{itemID}},
			{`DELETE FROM media_notifications WHERE item_id=$1`, []any{itemID}},
			{`DELETE FROM media_items WHERE id=$1`, []any{itemID}},
		}

		for _, stmt := range statements {
			if _, err := tx.Exec(stmt.query, stmt.args...); err != nil {
				return fmt.Errorf("failed to cascade delete media item %s: %w", itemID, err)
			}
		}

		return nil
	})
}

func selectItemBuilder() squirrel.SelectBuilder {
	return squirrel.Select("media_items.*").From("media_items")
}
