// Package progress mirrors each user's per-service consumption state.
// The store is a mirror of the external service's current truth, not an
// append log: every sync cycle overwrites progress, score and status.
package progress

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/media"
)

type (
	// UserState is one user's consumption state for one series on one
	// service. Keyed by the full (service, service_id, media_type,
	// user) composite.
	UserState struct {
		media.Key
		UserID         uuid.UUID            `db:"user_id"`
		Progress       int                  `db:"progress"`
		Score          *int                 `db:"score"`
		ConsumingState media.ConsumingState `db:"consuming_state"`
		UpdatedAt      time.Time            `db:"updated_at"`
	}

	// MediaList is a named grouping of a user's states on one service.
	MediaList struct {
		Service   media.ListService `db:"service"`
		MediaType media.MediaType   `db:"media_type"`
		UserID    uuid.UUID         `db:"user_id"`
		Name      string            `db:"name"`
	}

	// ListItem maps a user state in to a media list. The junction is
	// keyed on the full composite so a list can only ever reference a
	// state belonging to the same user, service and media type - the
	// schema FKs reject anything else.
	ListItem struct {
		media.Key
		UserID   uuid.UUID `db:"user_id"`
		ListName string    `db:"list_name"`
	}

	Store struct{}
)

func NewStore() *Store {
	return &Store{}
}

// Save upserts the user state, overwriting progress/score/status. An
// entry absent from the latest pull is deliberately NOT deleted here;
// removal requires an explicit Remove call so a transient fetch failure
// cannot destroy state.
func (store *Store) Save(db database.Queryable, state *UserState) error {
	_, err := db.NamedExec(`
		INSERT INTO media_user_states(service, service_id, media_type, user_id,
			progress, score, consuming_state, updated_at)
		VALUES(:service, :service_id, :media_type, :user_id,
			:progress, :score, :consuming_state, current_timestamp)
		ON CONFLICT(service, service_id, media_type, user_id) DO UPDATE SET
			progress=EXCLUDED.progress,
			score=EXCLUDED.score,
			consuming_state=EXCLUDED.consuming_state,
			updated_at=current_timestamp
	`, state)
	if err != nil {
		return fmt.Errorf("failed to upsert user state (%v, user %s): %w", state.Key, state.UserID, err)
	}

	return nil
}

// Remove deletes the user state and its list memberships. This is the
// only path that removes a state; it exists for the explicit "user
// removed the series from their list" signal.
func (store *Store) Remove(db database.Queryable, key media.Key, userID uuid.UUID) error {
	if _, err := db.Exec(`
		DELETE FROM media_list_items WHERE service=$1 AND service_id=$2 AND media_type=$3 AND user_id=$4
	`, key.Service, key.ServiceID, key.Type, userID); err != nil {
		return err
	}

	_, err := db.Exec(`
		DELETE FROM media_user_states WHERE service=$1 AND service_id=$2 AND media_type=$3 AND user_id=$4
	`, key.Service, key.ServiceID, key.Type, userID)
	return err
}

// CurrentReaderProgress returns the progress counters of every user
// actively consuming the given series. This feeds the chapter guess
// engine.
func (store *Store) CurrentReaderProgress(db database.Queryable, key media.Key) ([]int, error) {
	var counters []int
	err := db.Select(&counters, `
		SELECT progress FROM media_user_states
		WHERE service=$1 AND service_id=$2 AND media_type=$3
		AND consuming_state IN ($4, $5)
	`, key.Service, key.ServiceID, key.Type, media.Current, media.Repeating)
	if err != nil {
		return nil, err
	}

	return counters, nil
}

// ListForUser returns all stored states for the given user.
func (store *Store) ListForUser(db database.Queryable, userID uuid.UUID) ([]*UserState, error) {
	var states []*UserState
	if err := db.Select(&states, `SELECT * FROM media_user_states WHERE user_id=$1`, userID); err != nil {
		return nil, err
	}

	return states, nil
}

// SaveList upserts a named media list for a user.
func (store *Store) SaveList(db database.Queryable, list *MediaList) error {
	_, err := db.NamedExec(`
		INSERT INTO media_lists(service, media_type, user_id, name)
		VALUES(:service, :media_type, :user_id, :name)
		ON CONFLICT(service, media_type, user_id, name) DO NOTHING
	`, list)
	return err
}

// AddToList places a user state in to a named list. The write is
// rejected by the schema if the referenced state does not belong to
// the same (service, media_type, user) as the list.
func (store *Store) AddToList(db database.Queryable, item *ListItem) error {
	_, err := db.NamedExec(`
		INSERT INTO media_list_items(service, service_id, media_type, user_id, list_name)
		VALUES(:service, :service_id, :media_type, :user_id, :list_name)
		ON CONFLICT(service, service_id, media_type, user_id, list_name) DO NOTHING
	`, item)
	if err != nil {
		return fmt.Errorf("failed to add state (%v) to list %q: %w", item.Key, item.ListName, err)
	}

	return nil
}

// ListMembers returns the user states belonging to the given list.
func (store *Store) ListMembers(db database.Queryable, list *MediaList) ([]*UserState, error) {
	var states []*UserState
	err := db.Select(&states, `
		SELECT media_user_states.* FROM media_list_items
		INNER JOIN media_user_states
		ON media_user_states.service = media_list_items.service
		AND media_user_states.service_id = media_list_items.service_id
		AND media_user_states.media_type = media_list_items.media_type
		AND media_user_states.user_id = media_list_items.user_id
		WHERE media_list_items.service=$1 AND media_list_items.media_type=$2
		AND media_list_items.user_id=$3 AND media_list_items.list_name=$4
	`, list.Service, list.MediaType, list.UserID, list.Name)
	if err != nil {
		return nil, err
	}

	return states, nil
}
