package integration_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/media"
	"github.com/hbomb79/Shiori/internal/notifications"
	"github.com/hbomb79/Shiori/internal/releases"
	"github.com/hbomb79/Shiori/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MediaStore_UpsertAdoptsExistingIdentity(t *testing.T) {
	testDB := helpers.RequireDatabase(t)
	store := media.NewStore()
	key := itemKey(media.Anilist, "100", media.Anime)

	first := seedItem(t, testDB.DB, key, "Original Title")

	second := &media.Item{Key: key, Subtype: media.SubTypeTV, RomajiTitle: "Refreshed Title", ReleasingState: media.Releasing}
	require.NoError(t, store.Save(testDB.DB, second))

	assert.Equal(t, first.ID, second.ID, "expected upsert to adopt the existing rows ID")
	assert.Equal(t, 1, countRows(t, testDB.DB, "media_items"))

	fetched, err := store.Get(testDB.DB, key)
	require.NoError(t, err)
	assert.Equal(t, "Refreshed Title", fetched.RomajiTitle)
	assert.Equal(t, media.SubTypeTV, fetched.Subtype)
}

func Test_MediaStore_DuplicateIdentityRejected(t *testing.T) {
	testDB := helpers.RequireDatabase(t)
	key := itemKey(media.Mangadex, "abc", media.Manga)
	seedItem(t, testDB.DB, key, "Series")

	_, err := testDB.DB.Exec(`
		INSERT INTO media_items(id, service, service_id, media_type, media_subtype, romaji_title, releasing_state)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), key.Service, key.ServiceID, key.Type, media.SubTypeManga, "Imposter", media.Releasing)

	require.Error(t, err, "the identity key is unique; a second row must be rejected")
}

func Test_MediaStore_GetUnknownReturnsSentinel(t *testing.T) {
	testDB := helpers.RequireDatabase(t)

	_, err := media.NewStore().Get(testDB.DB, itemKey(media.Kitsu, "nope", media.Anime))
	assert.True(t, errors.Is(err, media.ErrItemNotFound))
}

func Test_MediaStore_UpdateReleasesOwnsCounters(t *testing.T) {
	testDB := helpers.RequireDatabase(t)
	store := media.NewStore()
	key := itemKey(media.Anilist, "7", media.Manga)
	item := seedItem(t, testDB.DB, key, "Series")

	require.NoError(t, store.UpdateReleases(testDB.DB, item.ID, intPtr(120), intPtr(12)))

	fetched, err := store.GetWithID(testDB.DB, item.ID)
	require.NoError(t, err)
	assert.Equal(t, intPtr(120), fetched.LatestRelease)
	assert.Equal(t, intPtr(12), fetched.LatestVolumeRelease)

	// A plain Save must not disturb the counters.
	fetched.RomajiTitle = "Renamed"
	require.NoError(t, store.Save(testDB.DB, fetched))

	refetched, err := store.GetWithID(testDB.DB, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", refetched.RomajiTitle)
	assert.Equal(t, intPtr(120), refetched.LatestRelease, "identity upserts must leave release counters alone")
}

func Test_MediaStore_DirectDeleteRestrictedByForeignKeys(t *testing.T) {
	testDB := helpers.RequireDatabase(t)
	key := itemKey(media.Anilist, "55", media.Manga)
	item := seedItem(t, testDB.DB, key, "Series")
	userID := seedUser(t, testDB.DB, "holder", nil)
	seedState(t, testDB.DB, key, userID, 3, media.Current)

	_, err := testDB.DB.Exec(`DELETE FROM media_items WHERE id=$1`, item.ID)
	require.Error(t, err, "dependent rows must block a bare delete")
}

func Test_MediaStore_DeleteCascadesExplicitly(t *testing.T) {
	testDB := helpers.RequireDatabase(t)
	key := itemKey(media.Anilist, "1", media.Manga)
	siblingKey := itemKey(media.Mangadex, "sibling", media.Manga)

	item := seedItem(t, testDB.DB, key, "Doomed Series")
	sibling := seedItem(t, testDB.DB, siblingKey, "Doomed Series")

	userID := seedUser(t, testDB.DB, "reader", strPtr("reader@chat"))
	seedState(t, testDB.DB, key, userID, 10, media.Current)
	seedState(t, testDB.DB, siblingKey, userID, 10, media.Current)

	require.NoError(t, media.NewMappingStore().SavePair(testDB.DB, item.ID, sibling.ID))
	require.NoError(t, releases.NewGuessStore().Save(testDB.DB, item.ID, 42))
	require.NoError(t, notifications.NewStore().Advance(testDB.DB, userID, item.ID, 9))

	require.NoError(t, media.NewStore().Delete(testDB.DB, item.ID))

	assert.Equal(t, 1, countRows(t, testDB.DB, "media_items"), "the sibling item must survive")
	assert.Equal(t, 1, countRows(t, testDB.DB, "media_user_states"))
	assert.Equal(t, 0, countRows(t, testDB.DB, "media_id_mappings"), "both mapping directions removed")
	assert.Equal(t, 0, countRows(t, testDB.DB, "manga_chapter_guesses"))
	assert.Equal(t, 0, countRows(t, testDB.DB, "media_notifications"))
}

func Test_MappingStore_PairIsSymmetricAndIdempotent(t *testing.T) {
	testDB := helpers.RequireDatabase(t)
	store := media.NewMappingStore()

	a := seedItem(t, testDB.DB, itemKey(media.Anilist, "10", media.Manga), "Series")
	b := seedItem(t, testDB.DB, itemKey(media.Mangadex, "uuid-b", media.Manga), "Series")

	require.NoError(t, store.SavePair(testDB.DB, a.ID, b.ID))
	require.NoError(t, store.SavePair(testDB.DB, a.ID, b.ID), "re-linking must be a no-op")

	assert.Equal(t, 2, countRows(t, testDB.DB, "media_id_mappings"), "one row per direction")

	relatedToA, err := store.RelatedItems(testDB.DB, a.ID)
	require.NoError(t, err)
	require.Len(t, relatedToA, 1)
	assert.Equal(t, b.ID, relatedToA[0].ID)

	relatedToB, err := store.RelatedItems(testDB.DB, b.ID)
	require.NoError(t, err)
	require.Len(t, relatedToB, 1)
	assert.Equal(t, a.ID, relatedToB[0].ID)

	ids, err := store.RelatedIDs(testDB.DB, a.ID)
	require.NoError(t, err)
	assert.Equal(t, map[media.ListService]string{media.Mangadex: "uuid-b"}, ids)
}
