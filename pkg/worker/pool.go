package worker

import (
	"errors"
	"sync"
)

// WorkerPool owns a set of workers and the WaitGroup tracking their
// goroutines. The WaitGroup is controlled by the pool itself.
type WorkerPool struct {
	workers []Worker
	Wg      sync.WaitGroup
	started bool
}

func NewWorkerPool() *WorkerPool {
	return &WorkerPool{workers: make([]Worker, 0)}
}

// Start spawns a goroutine for each worker currently attached to this
// pool. Start does NOT block; consumers can wait on the pools WaitGroup
// if they wish.
func (pool *WorkerPool) Start() error {
	if pool.started {
		return errors.New("cannot start an already started worker pool")
	}

	pool.started = true
	for _, worker := range pool.workers {
		pool.Wg.Add(1)
		go func(wg *sync.WaitGroup, w Worker) {
			defer wg.Done()
			w.Start()
		}(&pool.Wg, worker)
	}

	return nil
}

// PushWorker attaches the provided workers to the pool. Workers cannot
// be attached once the pool has been started.
func (pool *WorkerPool) PushWorker(workers ...Worker) error {
	if pool.started {
		return errors.New("cannot push worker to already started worker pool")
	}

	pool.workers = append(pool.workers, workers...)
	return nil
}

// WakeupWorkers sends on the wakeup channel of any sleeping workers in
// the pool.
func (pool *WorkerPool) WakeupWorkers() error {
	if !pool.started {
		return errors.New("cannot wakeup workers on worker pool that is not started")
	}

	for _, w := range pool.workers {
		if w.Status() == Sleeping {
			select {
			case w.WakeupChan() <- 1:
			default:
			}
		}
	}

	return nil
}

// Close closes the wakeup channel of every worker in the pool and waits
// for their goroutines to finish.
func (pool *WorkerPool) Close() {
	if !pool.started {
		return
	}

	for _, w := range pool.workers {
		w.Close()
	}
	pool.Wg.Wait()
	pool.started = false
}
