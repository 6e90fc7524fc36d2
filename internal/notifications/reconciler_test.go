package notifications_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/media"
	"github.com/hbomb79/Shiori/internal/notifications"
	"github.com/hbomb79/Shiori/internal/user"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDelivery = errors.New("test: delivery refused")

type fakeTxManager struct{}

func (manager *fakeTxManager) GetSqlxDb() *sqlx.DB { return nil }

func (manager *fakeTxManager) WrapTx(fn func(*sqlx.Tx) error) error { return fn(nil) }

type fakeUserStore struct {
	users []*user.User
}

func (store *fakeUserStore) List(_ database.Queryable) ([]*user.User, error) {
	return store.users, nil
}

func (store *fakeUserStore) GetWithID(_ database.Queryable, id uuid.UUID) (*user.User, error) {
	for _, usr := range store.users {
		if usr.ID == id {
			return usr, nil
		}
	}

	return nil, user.ErrUserNotFound
}

type fakeTrackedLister struct {
	byUser map[uuid.UUID][]*notifications.TrackedItem
}

func (lister *fakeTrackedLister) ListTracked(_ database.Queryable, userID uuid.UUID) ([]*notifications.TrackedItem, error) {
	return lister.byUser[userID], nil
}

// fakeMarks emulates watermark persistence by writing advances straight
// back in to the tracked items, so successive reconcile passes observe
// them the way a real store round-trip would.
type fakeMarks struct {
	tracked  *fakeTrackedLister
	advanced []uuid.UUID
	purges   map[uuid.UUID][]uuid.UUID
}

func (marks *fakeMarks) Advance(_ database.Queryable, userID uuid.UUID, itemID uuid.UUID, latest int) error {
	marks.advanced = append(marks.advanced, itemID)
	for _, item := range marks.tracked.byUser[userID] {
		if item.Item.ID == itemID && (item.Watermark == nil || *item.Watermark < latest) {
			value := latest
			item.Watermark = &value
		}
	}

	return nil
}

func (marks *fakeMarks) PurgeStale(_ database.Queryable, userID uuid.UUID, trackedItemIDs []uuid.UUID) error {
	if marks.purges == nil {
		marks.purges = map[uuid.UUID][]uuid.UUID{}
	}
	marks.purges[userID] = trackedItemIDs
	return nil
}

type fakeMessenger struct {
	sent    map[string][]notifications.Message
	refused map[string]bool
}

func (messenger *fakeMessenger) Send(recipient string, message notifications.Message) error {
	if messenger.refused[recipient] {
		return errDelivery
	}

	if messenger.sent == nil {
		messenger.sent = map[string][]notifications.Message{}
	}
	messenger.sent[recipient] = append(messenger.sent[recipient], message)
	return nil
}

func notifiableUser(recipient string, types ...media.MediaType) *user.User {
	addr := recipient
	settings := map[media.MediaType]bool{}
	for _, t := range types {
		settings[t] = true
	}

	usr := &user.User{NotificationSettings: settings}
	usr.ID = uuid.New()
	usr.Username = recipient
	usr.Recipient = &addr
	return usr
}

func trackedAnime(latest int, progress int, watermark *int) *notifications.TrackedItem {
	item := media.Item{
		ID:            uuid.New(),
		Key:           media.Key{Service: media.Anilist, ServiceID: uuid.NewString(), Type: media.Anime},
		RomajiTitle:   "Tracked Series",
		LatestRelease: &latest,
	}

	return &notifications.TrackedItem{Item: item, Progress: progress, Watermark: watermark}
}

func newHarness(users ...*user.User) (*notifications.Reconciler, *fakeTrackedLister, *fakeMarks, *fakeMessenger) {
	tracked := &fakeTrackedLister{byUser: map[uuid.UUID][]*notifications.TrackedItem{}}
	marks := &fakeMarks{tracked: tracked}
	messenger := &fakeMessenger{}
	reconciler := notifications.NewReconciler(&fakeTxManager{}, &fakeUserStore{users: users}, tracked, marks, messenger, nil)
	return reconciler, tracked, marks, messenger
}

// The watermark is the send baseline once it exists: a release count
// sequence of 5,5,8,8,12 with user progress stuck at 5 must notify
// exactly twice, at 8 and at 12.
func Test_Reconcile_WatermarkSequence(t *testing.T) {
	t.Parallel()

	usr := notifiableUser("alice", media.Anime)
	reconciler, tracked, _, messenger := newHarness(usr)

	item := trackedAnime(5, 5, nil)
	tracked.byUser[usr.ID] = []*notifications.TrackedItem{item}

	for _, latest := range []int{5, 5, 8, 8, 12} {
		value := latest
		item.LatestRelease = &value
		require.NoError(t, reconciler.Reconcile())
	}

	sent := messenger.sent["alice"]
	require.Len(t, sent, 2, "expected exactly two notifications across the sequence")
	assert.Contains(t, sent[0].Body, "Episode 8")
	assert.Contains(t, sent[1].Body, "Episode 12")
}

// A freshly tracked series baselines at the user's own progress, never
// at zero: the entire back catalogue must not be replayed.
func Test_Reconcile_FirstContactDoesNotBackfill(t *testing.T) {
	t.Parallel()

	usr := notifiableUser("bob", media.Anime)
	reconciler, tracked, _, messenger := newHarness(usr)
	tracked.byUser[usr.ID] = []*notifications.TrackedItem{trackedAnime(480, 480, nil)}

	require.NoError(t, reconciler.Reconcile())
	assert.Empty(t, messenger.sent, "user already at the latest release; nothing to say")
}

// ReleaseDiff and UserDiff are independent: a user far behind on their
// own progress gets nothing if they have already been told about the
// latest release.
func Test_Reconcile_BehindUserAlreadyNotified(t *testing.T) {
	t.Parallel()

	usr := notifiableUser("carol", media.Anime)
	reconciler, tracked, _, messenger := newHarness(usr)
	tracked.byUser[usr.ID] = []*notifications.TrackedItem{trackedAnime(12, 5, intPtr(12))}

	require.NoError(t, reconciler.Reconcile())
	assert.Empty(t, messenger.sent)
}

func Test_Reconcile_DeliveryFailureIsolatedPerUser(t *testing.T) {
	t.Parallel()

	broken := notifiableUser("broken", media.Anime)
	healthy := notifiableUser("healthy", media.Anime)
	reconciler, tracked, marks, messenger := newHarness(broken, healthy)
	messenger.refused = map[string]bool{"broken": true}

	brokenItem := trackedAnime(10, 5, intPtr(5))
	healthyItem := trackedAnime(10, 5, intPtr(5))
	tracked.byUser[broken.ID] = []*notifications.TrackedItem{brokenItem}
	tracked.byUser[healthy.ID] = []*notifications.TrackedItem{healthyItem}

	require.NoError(t, reconciler.Reconcile())

	assert.Len(t, messenger.sent["healthy"], 1, "failure for one user must not block another")
	assert.NotContains(t, marks.advanced, brokenItem.Item.ID, "failed delivery must leave the watermark untouched")
	assert.Contains(t, marks.advanced, healthyItem.Item.ID)
	assert.Equal(t, intPtr(5), brokenItem.Watermark, "the next pass should retry from the old watermark")
}

func Test_Reconcile_SkipsOptedOutMediaType(t *testing.T) {
	t.Parallel()

	usr := notifiableUser("dave", media.Manga)
	reconciler, tracked, _, messenger := newHarness(usr)
	tracked.byUser[usr.ID] = []*notifications.TrackedItem{trackedAnime(10, 5, intPtr(5))}

	require.NoError(t, reconciler.Reconcile())
	assert.Empty(t, messenger.sent, "anime updates must not reach a manga-only subscriber")
}

func Test_Reconcile_NoRecipientSkippedSilently(t *testing.T) {
	t.Parallel()

	usr := &user.User{NotificationSettings: map[media.MediaType]bool{media.Anime: true}}
	usr.ID = uuid.New()
	usr.Username = "erin"

	reconciler, tracked, marks, messenger := newHarness(usr)
	item := trackedAnime(10, 5, intPtr(5))
	tracked.byUser[usr.ID] = []*notifications.TrackedItem{item}

	require.NoError(t, reconciler.Reconcile())

	assert.Empty(t, messenger.sent)
	assert.Empty(t, marks.advanced)
	assert.Equal(t, []uuid.UUID{item.Item.ID}, marks.purges[usr.ID], "stale purge still runs for silent users")
}

func Test_Reconcile_PurgeStaleAlwaysRuns(t *testing.T) {
	t.Parallel()

	usr := notifiableUser("frank", media.Anime)
	reconciler, _, marks, _ := newHarness(usr)

	require.NoError(t, reconciler.Reconcile())

	purged, ok := marks.purges[usr.ID]
	require.True(t, ok, "expected a purge even with nothing tracked")
	assert.Empty(t, purged)
}

// A manga item with no authoritative count falls back to the chapter
// guess when deciding what the user is owed.
func Test_Reconcile_MangaGuessFallback(t *testing.T) {
	t.Parallel()

	usr := notifiableUser("grace", media.Manga)
	reconciler, tracked, _, messenger := newHarness(usr)

	item := &notifications.TrackedItem{
		Item: media.Item{
			ID:          uuid.New(),
			Key:         media.Key{Service: media.Mangadex, ServiceID: "abc", Type: media.Manga},
			RomajiTitle: "Guessed Series",
		},
		Progress:  40,
		Guess:     intPtr(42),
		Watermark: intPtr(40),
	}
	tracked.byUser[usr.ID] = []*notifications.TrackedItem{item}

	require.NoError(t, reconciler.Reconcile())

	sent := messenger.sent["grace"]
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "Chapter 42")
}

// CatchUp measures against the user's own progress and leaves the
// watermarks alone; the next regular pass is unaffected.
func Test_CatchUp_IgnoresWatermarkAndAdvancesNothing(t *testing.T) {
	t.Parallel()

	usr := notifiableUser("heidi", media.Anime)
	reconciler, tracked, marks, messenger := newHarness(usr)
	tracked.byUser[usr.ID] = []*notifications.TrackedItem{trackedAnime(12, 5, intPtr(12))}

	require.NoError(t, reconciler.CatchUp(usr.ID))

	require.Len(t, messenger.sent["heidi"], 1, "catch-up reports what the user is behind on")
	assert.Contains(t, messenger.sent["heidi"][0].Body, "(+7)")
	assert.Empty(t, marks.advanced, "catch-up must not move watermarks")
}
