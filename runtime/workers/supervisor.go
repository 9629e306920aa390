package workers

import (
	"chat-delivery/contract"
	"chat-delivery/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultRestartInterval = 200 * time.Millisecond

// Supervisor owns the background workers of the process.
// A worker that panics or fails is restarted after restartInterval,
// a worker returning nil is considered done.
// Run returns once every worker stopped, after the parent context is canceled.
type Supervisor struct {
	Cancel          context.CancelFunc // Stops every worker, not the parent
	wg              *sync.WaitGroup    // One entry per running worker
	log             *slog.Logger
	workers         []contract.Worker
	restartInterval time.Duration
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, restartInterval: restartInterval}
}

// Run starts every registered worker and blocks until they all returned.
// Canceling ctx, or calling Stop, stops them.
func (s *Supervisor) Run(ctx context.Context) {
	// 1. Our own cancellation, tied to the parent ctx.
	// The parent (main) going away cancels us,
	// calling s.Cancel() only cancels our workers.
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	// Released whatever the way Run exits
	defer s.Cancel()

	// 2. One goroutine per worker, then wait for all of them

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker in its own goroutine. A panic is recovered and turned
// into ErrWorkerPanic so that one worker never takes the others down.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
					}
				}()
				// Only this worker is rerun after a crash,
				// the supervising goroutine stays alive
				return worker.Run(ctx)
			}()

			if err == nil {
				// Clean exit, never restarted !
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				// Shutdown wins over the restart delay
				return
			case <-time.After(s.restartInterval):
				// Still running after the delay: restart the worker
			}
		}
	}()
}

// Stop cancels the workers, Run returns once they all left.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
