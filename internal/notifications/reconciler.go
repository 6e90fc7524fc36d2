package notifications

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/event"
	"github.com/hbomb79/Shiori/internal/media"
	"github.com/hbomb79/Shiori/internal/user"
	"github.com/hbomb79/Shiori/pkg/logger"
	"github.com/jmoiron/sqlx"
)

var log = logger.Get("Reconciler")

type (
	// Messenger delivers a rendered message to a recipient address. The
	// address format is opaque to the reconciler.
	Messenger interface {
		Send(recipient string, message Message) error
	}

	userStore interface {
		List(db database.Queryable) ([]*user.User, error)
		GetWithID(db database.Queryable, id uuid.UUID) (*user.User, error)
	}

	trackedLister interface {
		ListTracked(db database.Queryable, userID uuid.UUID) ([]*TrackedItem, error)
	}

	watermarkStore interface {
		Advance(db database.Queryable, userID uuid.UUID, itemID uuid.UUID, latest int) error
		PurgeStale(db database.Queryable, userID uuid.UUID, trackedItemIDs []uuid.UUID) error
	}

	txManager interface {
		GetSqlxDb() *sqlx.DB
		WrapTx(fn func(tx *sqlx.Tx) error) error
	}

	// Reconciler compares each user's tracked items against what they
	// have already been notified about, delivers messages for the
	// difference, then advances the watermarks. Users are independent:
	// a failure for one never blocks delivery for another.
	Reconciler struct {
		db        txManager
		users     userStore
		tracked   trackedLister
		marks     watermarkStore
		messenger Messenger
		events    event.EventDispatcher
	}
)

// NewReconciler constructs a reconciler. A nil event dispatcher simply
// means no NOTIFICATION_DISPATCHED events are announced.
func NewReconciler(db txManager, users userStore, tracked trackedLister, marks watermarkStore, messenger Messenger, events event.EventDispatcher) *Reconciler {
	return &Reconciler{db: db, users: users, tracked: tracked, marks: marks, messenger: messenger, events: events}
}

// Reconcile runs one full notification pass over all users. Per-user
// failures are logged and swallowed so the remaining users still get
// their notifications.
func (reconciler *Reconciler) Reconcile() error {
	db := reconciler.db.GetSqlxDb()
	users, err := reconciler.users.List(db)
	if err != nil {
		return fmt.Errorf("failed to list users for reconciliation: %w", err)
	}

	for _, usr := range users {
		if err := reconciler.reconcileUser(db, usr); err != nil {
			log.Emit(logger.ERROR, "Reconciliation for user %s failed: %v\n", usr.Username, err)
		}
	}

	return nil
}

// reconcileUser delivers everything due for a single user. Watermarks
// are only advanced, in one transaction together with the stale-row
// purge, once every message has been handed to the messenger; a failed
// delivery leaves the watermarks untouched so the next pass retries.
func (reconciler *Reconciler) reconcileUser(db database.Queryable, usr *user.User) error {
	tracked, err := reconciler.tracked.ListTracked(db, usr.ID)
	if err != nil {
		return fmt.Errorf("failed to list tracked items: %w", err)
	}

	trackedIDs := make([]uuid.UUID, 0, len(tracked))
	var due []Delta
	for _, item := range tracked {
		trackedIDs = append(trackedIDs, item.Item.ID)

		delta, ok := ComputeDelta(item)
		if !ok {
			continue
		}

		if delta.ReleaseDiff > 0 && usr.WantsNotifications(item.Type) {
			due = append(due, delta)
		}
	}

	if len(due) > 0 {
		for _, message := range FormatMessages(due) {
			if err := reconciler.messenger.Send(*usr.Recipient, message); err != nil {
				return fmt.Errorf("delivery failed: %w", err)
			}
		}

		log.Emit(logger.INFO, "Delivered %d release update(s) to user %s\n", len(due), usr.Username)
	}

	err = reconciler.db.WrapTx(func(tx *sqlx.Tx) error {
		for _, delta := range due {
			if err := reconciler.marks.Advance(tx, usr.ID, delta.Item.ID, delta.Latest); err != nil {
				return err
			}
		}

		return reconciler.marks.PurgeStale(tx, usr.ID, trackedIDs)
	})
	if err != nil {
		return err
	}

	if len(due) > 0 && reconciler.events != nil {
		reconciler.events.Dispatch(event.NOTIFICATION_DISPATCHED, usr.ID)
	}

	return nil
}

// CatchUp re-sends the user's outstanding releases measured against
// their own progress, ignoring the watermarks entirely. Nothing is
// advanced: a catch-up is a read-only view of what the user is behind
// on, and the next regular pass behaves as if it never happened.
func (reconciler *Reconciler) CatchUp(userID uuid.UUID) error {
	db := reconciler.db.GetSqlxDb()
	usr, err := reconciler.users.GetWithID(db, userID)
	if err != nil {
		return err
	}
	if usr.Recipient == nil {
		return fmt.Errorf("user %s has no notification recipient", usr.Username)
	}

	tracked, err := reconciler.tracked.ListTracked(db, usr.ID)
	if err != nil {
		return fmt.Errorf("failed to list tracked items: %w", err)
	}

	var behind []Delta
	for _, item := range tracked {
		delta, ok := ComputeDelta(item)
		if !ok {
			continue
		}

		if delta.UserDiff > 0 {
			behind = append(behind, delta)
		}
	}

	for _, message := range FormatMessages(behind) {
		if err := reconciler.messenger.Send(*usr.Recipient, message); err != nil {
			return fmt.Errorf("delivery failed: %w", err)
		}
	}

	return nil
}

// ComputeDelta derives the notification delta for one tracked item.
// Returns false if no release count is known at all, in which case the
// item cannot produce a notification. The send baseline is the
// watermark when one exists, otherwise the user's own progress, so a
// freshly-tracked series never replays its entire back catalogue.
func ComputeDelta(item *TrackedItem) (Delta, bool) {
	latest := EffectiveLatest(item)
	if latest == nil {
		return Delta{}, false
	}

	baseline := item.Progress
	if item.Watermark != nil {
		baseline = *item.Watermark
	}

	return Delta{
		Item:        item.Item,
		Latest:      *latest,
		Baseline:    baseline,
		Progress:    item.Progress,
		ReleaseDiff: *latest - baseline,
		UserDiff:    *latest - item.Progress,
	}, true
}

// EffectiveLatest resolves the release count to notify against: the
// item's own current release where known, falling back to the chapter
// guess for manga with no authoritative count.
func EffectiveLatest(item *TrackedItem) *int {
	if latest := item.CurrentRelease(); latest != nil {
		return latest
	}
	if item.Type == media.Manga {
		return item.Guess
	}

	return nil
}
