package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/event"
	"github.com/hbomb79/Shiori/internal/media"
	"github.com/hbomb79/Shiori/internal/notifications"
	"github.com/hbomb79/Shiori/internal/progress"
	"github.com/hbomb79/Shiori/internal/releases"
	"github.com/hbomb79/Shiori/internal/user"
	"github.com/hbomb79/Shiori/pkg/logger"
	"github.com/hbomb79/Shiori/pkg/worker"
	"golang.org/x/time/rate"
)

var log = logger.Get("SyncServ")

type (
	// IdentityApplier upserts normalized entries to canonical items and
	// applies cross-service correlations.
	IdentityApplier interface {
		Apply(db database.Queryable, entries []media.ListEntry) []media.Applied
		ApplyCorrelations(db database.Queryable, correlations []media.Correlation)
	}

	// ReleaseTracker folds release count signals in to the canonical items.
	ReleaseTracker interface {
		Update(db database.Queryable, applied []media.Applied, snapshot releases.Snapshot)
	}

	// Reconciler runs one notification pass over all users.
	Reconciler interface {
		Reconcile() error
	}

	UserLister interface {
		List(db database.Queryable) ([]*user.User, error)
	}

	ProgressSink interface {
		Save(db database.Queryable, state *progress.UserState) error
	}

	GuessSnapshotter interface {
		ListAll(db database.Queryable) (map[uuid.UUID]int, error)
	}

	// Collaborators are the external-facing contracts supplied at
	// composition time. The Resolver and AiringFeed may be nil; the
	// cycle then simply has no correlations and no airing signal.
	// LightNovels feeds the on-demand release listing surface rather
	// than the sync cycle, and may also be nil.
	Collaborators struct {
		Sources     []Source
		AiringFeed  AiringFeed
		Resolver    CrossReferenceResolver
		LightNovels notifications.LightNovelFeed
	}

	// Pipeline is the ordered set of domain stages a cycle drives once
	// fetching has completed.
	Pipeline struct {
		Mapper     IdentityApplier
		Tracker    ReleaseTracker
		Reconciler Reconciler
		Users      UserLister
		States     ProgressSink
		Guesses    GuessSnapshotter
	}

	fetchJobState int

	// fetchJob is one (source, user, media type) combination awaiting a
	// worker. Jobs are rebuilt at the start of every cycle and carry
	// the cycle's context and WaitGroup so workers never read mutable
	// service state without the lock.
	fetchJob struct {
		source    Source
		usr       *user.User
		mediaType media.MediaType
		state     fetchJobState
		ctx       context.Context
		wg        *stdsync.WaitGroup
	}

	fetchResult struct {
		usr     *user.User
		entries []media.ListEntry
	}

	// syncService repeatedly pulls every user's lists from the external
	// services and pushes the results through the identity, release and
	// notification stages. Fetching is parallel across a worker pool but
	// paced per-source; everything after the fetch is serialized.
	syncService struct {
		*stdsync.Mutex
		config        Config
		db            database.Manager
		eventBus      event.EventDispatcher
		collaborators Collaborators
		pipeline      Pipeline
		limiters      map[media.ListService]*rate.Limiter

		jobs    []*fetchJob
		results []fetchResult

		workerPool *worker.WorkerPool
	}
)

const (
	jobIdle fetchJobState = iota
	jobClaimed
)

// New creates a new sync service. Each source gets its own rate
// limiter built from the configured per-minute budget.
func New(config Config, db database.Manager, eventBus event.EventDispatcher, collaborators Collaborators, pipeline Pipeline) (*syncService, error) {
	if config.SourceRequestsPerMinute <= 0 {
		return nil, fmt.Errorf("sync config requires a positive per-source request budget")
	}
	if config.FetchParallelism <= 0 {
		return nil, fmt.Errorf("sync config requires at least one fetch worker")
	}

	limiters := make(map[media.ListService]*rate.Limiter, len(collaborators.Sources))
	for _, source := range collaborators.Sources {
		limiters[source.Service()] = rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(config.SourceRequestsPerMinute)),
			config.SourceRequestsPerMinute,
		)
	}

	service := &syncService{
		Mutex:         &stdsync.Mutex{},
		config:        config,
		db:            db,
		eventBus:      eventBus,
		collaborators: collaborators,
		pipeline:      pipeline,
		limiters:      limiters,
		workerPool:    worker.NewWorkerPool(),
	}

	for i := 0; i < config.FetchParallelism; i++ {
		label := fmt.Sprintf("sync-fetch-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.performFetch))
	}

	return service, nil
}

// Run is the main entry point of this service: an immediate sync cycle
// followed by one per configured interval. To kill the service, the
// calling code should cancel the context provided.
func (service *syncService) Run(ctx context.Context) error {
	if err := service.workerPool.Start(); err != nil {
		return err
	}
	defer service.workerPool.Close()

	ticker := time.NewTicker(service.config.SyncInterval())
	defer ticker.Stop()

	service.PerformSync(ctx)
	for {
		select {
		case <-ticker.C:
			service.PerformSync(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// PerformSync runs one full cycle: build the fetch jobs, wait for the
// worker pool to drain them, then drive the pipeline over the results.
// A fetch failure skips that (user, media type) slice for this cycle
// only; the rest of the cycle proceeds with what was fetched.
func (service *syncService) PerformSync(ctx context.Context) {
	db := service.db.GetSqlxDb()
	users, err := service.pipeline.Users.List(db)
	if err != nil {
		log.Emit(logger.ERROR, "Sync cycle aborted, cannot list users: %s\n", err.Error())
		return
	}

	wg := service.buildJobs(ctx, users)
	if err := service.workerPool.WakeupWorkers(); err != nil {
		log.Emit(logger.ERROR, "Failed to wakeup fetch workers: %s\n", err.Error())
		return
	}
	wg.Wait()

	service.Lock()
	results := service.results
	service.results = nil
	service.jobs = nil
	service.Unlock()

	service.runPipeline(ctx, results)
}

// buildJobs swaps in a fresh job list for the cycle and returns the
// WaitGroup which closes once every job has been claimed and finished.
//
// Note: This function takes ownership of the mutex and releases it on return
func (service *syncService) buildJobs(ctx context.Context, users []*user.User) *stdsync.WaitGroup {
	service.Lock()
	defer service.Unlock()

	service.jobs = nil
	service.results = nil

	wg := &stdsync.WaitGroup{}
	for _, source := range service.collaborators.Sources {
		for _, usr := range users {
			for _, mediaType := range media.MediaTypes() {
				service.jobs = append(service.jobs, &fetchJob{
					source:    source,
					usr:       usr,
					mediaType: mediaType,
					ctx:       ctx,
					wg:        wg,
				})
				wg.Add(1)
			}
		}
	}

	return wg
}

// performFetch is the worker function for the sync service, called by
// the services WorkerPool. It claims the first idle fetch job it finds,
// waits out the source's rate limiter, and performs the fetch under the
// configured deadline.
func (service *syncService) performFetch(w worker.Worker) (bool, error) {
	job := service.claimIdleJob()
	if job == nil {
		return false, nil
	}
	defer job.wg.Done()

	fetchCtx, cancel := context.WithTimeout(job.ctx, service.config.FetchTimeout())
	defer cancel()

	if err := service.limiters[job.source.Service()].Wait(fetchCtx); err != nil {
		return true, fmt.Errorf("rate limit wait for %s abandoned: %w", job.source.Service(), err)
	}

	entries, err := job.source.FetchUserList(fetchCtx, job.usr.Username, job.mediaType)
	if err != nil {
		log.Emit(logger.WARNING, "Skipping %s/%s fetch for user %s this cycle: %s\n",
			job.source.Service(), job.mediaType, job.usr.Username, err.Error())
		return true, nil
	}

	service.Lock()
	service.results = append(service.results, fetchResult{usr: job.usr, entries: entries})
	service.Unlock()

	return true, nil
}

// claimIdleJob returns the first idle fetch job, marking it claimed, or
// nil when no jobs remain for this cycle.
//
// Note: This function takes ownership of the mutex and releases it on return
func (service *syncService) claimIdleJob() *fetchJob {
	service.Lock()
	defer service.Unlock()

	for _, job := range service.jobs {
		if job.state == jobIdle {
			job.state = jobClaimed
			return job
		}
	}

	return nil
}

// runPipeline drives the post-fetch stages over this cycle's results:
// identity upserts, correlations, release tracking, progress mirroring
// and finally notification reconciliation.
func (service *syncService) runPipeline(ctx context.Context, results []fetchResult) {
	db := service.db.GetSqlxDb()

	var allApplied []media.Applied
	var fetched int
	for _, result := range results {
		fetched += len(result.entries)
		applied := service.pipeline.Mapper.Apply(db, result.entries)
		service.mirrorProgress(db, result.usr, applied)
		allApplied = append(allApplied, applied...)
	}

	for _, a := range allApplied {
		if a.Existing == nil {
			service.eventBus.Dispatch(event.NEW_MEDIA, a.Item.ID)
		}
	}

	service.applyCorrelations(ctx, db, allApplied)

	snapshot := service.buildSnapshot(ctx, db)
	service.pipeline.Tracker.Update(db, allApplied, snapshot)

	if err := service.pipeline.Reconciler.Reconcile(); err != nil {
		log.Emit(logger.ERROR, "Notification reconciliation failed: %s\n", err.Error())
	}

	service.eventBus.Dispatch(event.SYNC_COMPLETE, nil)
	log.Emit(logger.SUCCESS, "Sync cycle complete (%d/%d fetched entries accepted, %d fetches)\n", len(allApplied), fetched, len(results))
}

func (service *syncService) applyCorrelations(ctx context.Context, db database.Queryable, applied []media.Applied) {
	if service.collaborators.Resolver == nil || len(applied) == 0 {
		return
	}

	keys := make([]media.Key, 0, len(applied))
	for _, a := range applied {
		keys = append(keys, a.Item.Key)
	}

	resolveCtx, cancel := context.WithTimeout(ctx, service.config.FetchTimeout())
	defer cancel()

	correlations, err := service.collaborators.Resolver.Correlations(resolveCtx, keys)
	if err != nil {
		log.Emit(logger.WARNING, "Cross-reference resolution skipped this cycle: %s\n", err.Error())
		return
	}

	service.pipeline.Mapper.ApplyCorrelations(db, correlations)
}

// buildSnapshot gathers the cycle-wide release signals the tracker
// consumes: the newest aired episodes and the current chapter guesses.
// Either signal failing degrades the snapshot instead of the cycle.
func (service *syncService) buildSnapshot(ctx context.Context, db database.Queryable) releases.Snapshot {
	snapshot := releases.Snapshot{
		AiringEpisodes: map[media.Key]int{},
		Guesses:        map[uuid.UUID]int{},
	}

	if service.collaborators.AiringFeed != nil {
		feedCtx, cancel := context.WithTimeout(ctx, service.config.FetchTimeout())
		defer cancel()

		if airing, err := service.collaborators.AiringFeed.NewestEpisodes(feedCtx); err == nil {
			snapshot.AiringEpisodes = airing
		} else {
			log.Emit(logger.WARNING, "Airing feed unavailable this cycle: %s\n", err.Error())
		}
	}

	if guesses, err := service.pipeline.Guesses.ListAll(db); err == nil {
		snapshot.Guesses = guesses
	} else {
		log.Emit(logger.WARNING, "Chapter guesses unavailable this cycle: %s\n", err.Error())
	}

	return snapshot
}

// mirrorProgress overwrites the user's stored consumption state with
// the entries the identity mapper accepted. An entry the mapper
// rejected never reaches the mirror, and entries absent from a fetch
// are left alone; removal is an explicit operation, not an inference.
func (service *syncService) mirrorProgress(db database.Queryable, usr *user.User, applied []media.Applied) {
	for _, a := range applied {
		state := entryToUserState(usr.ID, a.Entry)
		if err := service.pipeline.States.Save(db, state); err != nil {
			log.Emit(logger.ERROR, "Failed to mirror progress (%v, user %s): %s\n",
				a.Entry.Key(), usr.Username, err.Error())
		}
	}
}

func entryToUserState(userID uuid.UUID, entry media.ListEntry) *progress.UserState {
	return &progress.UserState{
		Key:            entry.Key(),
		UserID:         userID,
		Progress:       entry.Progress,
		Score:          entry.Score,
		ConsumingState: entry.ConsumingState,
	}
}
