package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// WorkerFunc processes one chunk task end to end: download the inputs, run
// the cleanup pipeline, upload the artifact to payload.OutputURI. It must be
// idempotent — see the package doc.
type WorkerFunc func(ctx context.Context, payload Payload) error

// Local is an in-process [Queue] that runs the worker in a goroutine per
// submitted task. It stands in for a hosted task queue during local operation
// and in tests; the orchestrator still observes completion only through the
// blob store, exactly as it would with a remote transport.
type Local struct {
	worker WorkerFunc
	log    *slog.Logger

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ Queue = (*Local)(nil)

// NewLocal creates an in-process queue backed by worker.
func NewLocal(worker WorkerFunc, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{worker: worker, log: log}
}

// Submit implements Queue. The worker runs detached from ctx: a submitted
// task outlives the submit call, like it would on a remote queue.
func (q *Local) Submit(ctx context.Context, payload Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", fmt.Errorf("queue: submit on closed queue")
	}
	q.wg.Add(1)
	q.mu.Unlock()

	taskID := uuid.NewString()
	go func() {
		defer q.wg.Done()
		if err := q.worker(context.Background(), payload); err != nil {
			q.log.Error("chunk task failed",
				"task_id", taskID,
				"episode_id", payload.EpisodeID,
				"chunk_id", payload.ChunkID,
				"chunk_index", payload.ChunkIndex,
				"error", err)
		}
	}()
	return taskID, nil
}

// Close waits for all in-flight tasks to finish. Further submits fail.
func (q *Local) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
