package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/media"
)

var ErrUserNotFound = errors.New("user does not exist")

type (
	// userBase holds the raw users table columns.
	userBase struct {
		ID        uuid.UUID `db:"id"`
		Username  string    `db:"username"`
		Recipient *string   `db:"recipient"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	// userModel is a combination of the users table columns, combined with
	// a JSON representation of the coalesced notification setting rows
	// which are joined in to the query. We use a separate struct as part of
	// the public API of this store to hide the use of the JsonColumn container
	// to prevent against breakages if we change this in the future
	userModel struct {
		userBase
		NotificationSettings database.JsonColumn[map[media.MediaType]bool] `db:"notification_settings"`
	}

	// User is the external/public API for the user model. A user with no
	// Recipient has nowhere for notifications to be delivered; the
	// reconciler skips them without consuming their pending releases.
	User struct {
		userBase
		NotificationSettings map[media.MediaType]bool
	}

	Store struct{}
)

func NewStore() *Store {
	return &Store{}
}

// WantsNotifications returns whether the user has opted in to
// notifications for the given media type. Absent settings rows are
// treated as opted out.
func (user *User) WantsNotifications(mediaType media.MediaType) bool {
	return user.Recipient != nil && user.NotificationSettings[mediaType]
}

func (store *Store) Create(db database.Queryable, username string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.Exec(`
		INSERT INTO users(id, username, recipient, created_at, updated_at)
		VALUES ($1, $2, NULL, current_timestamp, current_timestamp)
	`, id, username)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert new user: %w", err)
	}

	return id, nil
}

func (store *Store) List(db database.Queryable) ([]*User, error) {
	query, args, err := selectUserBuilder().ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list users query: %w", err)
	}

	var results []userModel
	if err := db.Select(&results, query, args...); err != nil {
		return nil, err
	}

	output := make([]*User, len(results))
	for k, v := range results {
		output[k] = userModelToUser(&v)
	}

	return output, nil
}

func (store *Store) GetWithID(db database.Queryable, id uuid.UUID) (*User, error) {
	query, args, err := selectUserBuilder().Where("users.id=?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select user query: %w", err)
	}

	var user userModel
	if err := db.Get(&user, db.Rebind(query), args...); err != nil {
		return nil, ErrUserNotFound
	}

	return userModelToUser(&user), nil
}

func (store *Store) GetWithUsername(db database.Queryable, username string) (*User, error) {
	query, args, err := selectUserBuilder().Where("users.username=?", username).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select user query: %w", err)
	}

	var user userModel
	if err := db.Get(&user, db.Rebind(query), args...); err != nil {
		return nil, ErrUserNotFound
	}

	return userModelToUser(&user), nil
}

// SetRecipient records (or clears, when nil) the delivery address for
// this user's notifications.
func (store *Store) SetRecipient(db database.Queryable, userID uuid.UUID, recipient *string) error {
	_, err := db.Exec(`UPDATE users SET recipient=$2, updated_at=current_timestamp WHERE id=$1`, userID, recipient)
	return err
}

// SetNotificationSetting upserts the per-media-type opt-in flag for the user.
func (store *Store) SetNotificationSetting(db database.Queryable, userID uuid.UUID, mediaType media.MediaType, enabled bool) error {
	_, err := db.Exec(`
		INSERT INTO user_notification_settings(user_id, media_type, enabled)
		VALUES($1, $2, $3)
		ON CONFLICT(user_id, media_type) DO UPDATE SET enabled=EXCLUDED.enabled
	`, userID, mediaType, enabled)
	return err
}

func (store *Store) Delete(db database.Queryable, userID uuid.UUID) error {
	if _, err := db.Exec(`DELETE FROM user_notification_settings WHERE user_id=$1`, userID); err != nil {
		return err
	}

	_, err := db.Exec(`DELETE FROM users WHERE id=$1`, userID)
	return err
}

func selectUserBuilder() squirrel.SelectBuilder {
	return squirrel.
		Select("users.*", `COALESCE(JSONB_OBJECT_AGG(user_notification_settings.media_type, user_notification_settings.enabled)
			FILTER (WHERE user_notification_settings.user_id IS NOT NULL), '{}') AS notification_settings`).
		From("users").
		LeftJoin("user_notification_settings ON user_notification_settings.user_id = users.id").
		GroupBy("users.id")
}

func userModelToUser(model *userModel) *User {
	return &User{
		userBase:             model.userBase,
		NotificationSettings: *model.NotificationSettings.Get(),
	}
}
