package automatch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Queue decouples item creation from matching: the API submits trigger
// IDs and returns immediately, a worker pool drains them in the
// background. A failed run is logged, never surfaced to the reporting
// user; the item can be re-triggered manually.
type Queue struct {
	orc  *Orchestrator
	log  *logrus.Logger
	jobs chan string
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewQueue starts workers goroutines draining a buffer-sized channel.
func NewQueue(orc *Orchestrator, workers, buffer int, log *logrus.Logger) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 64
	}

	q := &Queue{
		orc:  orc,
		log:  log,
		jobs: make(chan string, buffer),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a trigger without blocking. It reports false when the
// queue is full or already shut down; duplicate submissions are fine
// because runs are idempotent. The send happens under the same lock
// Close uses, so a racing shutdown can never see a send on the closed
// channel.
func (q *Queue) Submit(itemID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return false
	}
	select {
	case q.jobs <- itemID:
		return true
	default:
		q.log.WithField("item", itemID).Warn("auto-match queue full, dropping trigger")
		return false
	}
}

// Close stops accepting triggers and drains what is already queued.
// Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
	q.orc.WaitNotifications()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for itemID := range q.jobs {
		res, err := q.orc.Run(context.Background(), itemID)
		if err != nil {
			q.log.WithError(err).WithField("item", itemID).Error("auto-match run failed")
			continue
		}
		q.log.WithFields(logrus.Fields{
			"module":  "automatch",
			"item":    itemID,
			"outcome": res.Outcome,
		}).Debug("auto-match run finished")
	}
}
