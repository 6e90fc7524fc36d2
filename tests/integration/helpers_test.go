// Integration tests exercising the stores against a real postgres
// instance: schema constraints, upsert semantics and the SQL-side
// guards that the unit tests can only fake.
package integration_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/media"
	"github.com/hbomb79/Shiori/internal/progress"
	"github.com/hbomb79/Shiori/internal/user"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func seedUser(t *testing.T, db *sqlx.DB, username string, recipient *string) uuid.UUID {
	store := user.NewStore()
	id, err := store.Create(db, username)
	require.NoError(t, err)

	if recipient != nil {
		require.NoError(t, store.SetRecipient(db, id, recipient))
	}

	return id
}

func seedItem(t *testing.T, db *sqlx.DB, key media.Key, title string) *media.Item {
	item := &media.Item{
		Key:            key,
		Subtype:        media.SubTypeUnknown,
		RomajiTitle:    title,
		ReleasingState: media.Releasing,
	}
	require.NoError(t, media.NewStore().Save(db, item))
	return item
}

func seedState(t *testing.T, db *sqlx.DB, key media.Key, userID uuid.UUID, prog int, state media.ConsumingState) {
	require.NoError(t, progress.NewStore().Save(db, &progress.UserState{
		Key:            key,
		UserID:         userID,
		Progress:       prog,
		ConsumingState: state,
	}))
}

func itemKey(service media.ListService, serviceID string, mediaType media.MediaType) media.Key {
	return media.Key{Service: service, ServiceID: serviceID, Type: mediaType}
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM "+table))
	return count
}
