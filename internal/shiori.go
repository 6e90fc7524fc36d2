package internal

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/event"
	"github.com/hbomb79/Shiori/internal/media"
	"github.com/hbomb79/Shiori/internal/notifications"
	"github.com/hbomb79/Shiori/internal/progress"
	"github.com/hbomb79/Shiori/internal/releases"
	"github.com/hbomb79/Shiori/internal/sync"
	"github.com/hbomb79/Shiori/internal/user"
	"github.com/hbomb79/Shiori/pkg/logger"
)

var log = logger.Get("Core")

type RunnableService interface {
	Run(context.Context) error
}

// Shiori represents the top-level object for the daemon, and is responsible
// for initialising stores, services, event handling, et cetera...
type shioriImpl struct {
	eventBus event.EventCoordinator
	config   ShioriConfig

	collaborators sync.Collaborators
	messenger     notifications.Messenger

	mediaStore        *media.Store
	mappingStore      *media.MappingStore
	progressStore     *progress.Store
	userStore         *user.Store
	guessStore        *releases.GuessStore
	notificationStore *notifications.Store

	lnLister    *notifications.LightNovelLister
	syncService RunnableService
}

// New constructs the daemon around the externally-supplied
// collaborators: the list sources to sync against, and the messenger
// notifications are delivered through. A nil messenger falls back to
// log-only delivery.
func New(config ShioriConfig, collaborators sync.Collaborators, messenger notifications.Messenger) *shioriImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Shiori services using config: %#v\n", config)
	if messenger == nil {
		messenger = notifications.NewLogMessenger()
	}

	shiori := &shioriImpl{
		eventBus:          event.New(),
		config:            config,
		collaborators:     collaborators,
		messenger:         messenger,
		mediaStore:        media.NewStore(),
		mappingStore:      media.NewMappingStore(),
		progressStore:     progress.NewStore(),
		userStore:         user.NewStore(),
		guessStore:        releases.NewGuessStore(),
		notificationStore: notifications.NewStore(),
	}

	if collaborators.LightNovels != nil {
		shiori.lnLister = notifications.NewLightNovelLister(collaborators.LightNovels, messenger)
	}

	return shiori
}

// LightNovelLister exposes the on-demand light novel release listing
// surface, or nil when no release calendar collaborator was supplied.
func (shiori *shioriImpl) LightNovelLister() *notifications.LightNovelLister {
	return shiori.lnLister
}

// Run will start all of Shiori by bringing up the database connection
// and the sync service.
//
// This function will not return until Shiori is stopped.
// To stop Shiori, the provided context must be cancelled. Errors from
// which Shiori cannot recover will also cause it to stop.
func (shiori *shioriImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	db := database.New()
	if err := db.Connect(shiori.config.Database); err != nil {
		return err
	}

	if err := shiori.initialiseServices(db); err != nil {
		return err
	}

	wg := &stdsync.WaitGroup{}
	shiori.spawnAsyncService(ctx, wg, shiori.syncService, "sync-service", crashHandler)
	log.Emit(logger.SUCCESS, "Shiori services spawned!\n")

	wg.Wait()
	return nil
}

// initialiseServices wires the domain pipeline together: identity
// mapping, release tracking, notification reconciliation and finally
// the sync service which drives them all.
func (shiori *shioriImpl) initialiseServices(db database.Manager) error {
	mapper := media.NewIdentityMapper(shiori.mediaStore, shiori.mappingStore)
	engine := releases.NewGuessEngine(shiori.progressStore, shiori.mappingStore)
	tracker := releases.NewTracker(shiori.mediaStore, shiori.guessStore, engine)
	reconciler := notifications.NewReconciler(db, shiori.userStore, shiori.notificationStore, shiori.notificationStore, shiori.messenger, shiori.eventBus)

	syncService, err := sync.New(shiori.config.Sync, db, shiori.eventBus, shiori.collaborators, sync.Pipeline{
		Mapper:     mapper,
		Tracker:    tracker,
		Reconciler: reconciler,
		Users:      shiori.userStore,
		States:     shiori.progressStore,
		Guesses:    shiori.guessStore,
	})
	if err != nil {
		return fmt.Errorf("failed to construct sync service: %w", err)
	}

	shiori.syncService = syncService
	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Shiori service waitgroup is updated correctly
func (shiori *shioriImpl) spawnAsyncService(context context.Context, wg *stdsync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *stdsync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
