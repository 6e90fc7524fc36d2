package worker

import "github.com/hbomb79/Shiori/pkg/logger"

var workerLogger = logger.Get("Worker")

type (
	WorkerWakeupChan chan int
	WorkerStatus     int

	// WorkerTask is the unit of work a worker repeatedly executes. The
	// boolean return indicates whether any work was claimed; returning
	// false sends the worker back to sleep until the next wakeup.
	WorkerTask func(Worker) (bool, error)

	Worker interface {
		Start()
		Status() WorkerStatus
		WakeupChan() WorkerWakeupChan
		Label() string
		Sleep() bool
		Close()
	}
)

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

type taskWorker struct {
	label      string
	task       WorkerTask
	wakeupChan WorkerWakeupChan
	status     WorkerStatus
}

// NewWorker creates a worker that will drain the given task until it
// reports no work remaining, sleeping in between wakeups. The wakeup
// channel is buffered so a wakeup sent just before the worker reaches
// its sleep receive is held rather than dropped.
func NewWorker(label string, task WorkerTask) *taskWorker {
	return &taskWorker{
		label:      label,
		task:       task,
		wakeupChan: make(WorkerWakeupChan, 1),
		status:     Sleeping,
	}
}

// Start runs the workers main loop, only returning once the workers
// wakeup channel has been closed via 'Close'.
func (worker *taskWorker) Start() {
	for {
		worker.status = Working
		for {
			claimed, err := worker.task(worker)
			if err != nil {
				workerLogger.Emit(logger.ERROR, "Worker %s task failed: %s\n", worker.label, err.Error())
			}

			if !claimed {
				break
			}
		}

		if !worker.Sleep() {
			return
		}
	}
}

// Sleep marks this worker as sleeping and blocks until it's woken up
// again. The return indicates whether the worker should resume; false
// means the wakeup channel was closed and the worker must quit.
func (worker *taskWorker) Sleep() bool {
	worker.status = Sleeping
	if _, ok := <-worker.wakeupChan; !ok {
		worker.status = Finished
		return false
	}

	return true
}

func (worker *taskWorker) Status() WorkerStatus {
	return worker.status
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

func (worker *taskWorker) Label() string {
	return worker.label
}

func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}
