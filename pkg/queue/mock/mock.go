// Package mock provides a test double for the queue.Queue interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/recut/pkg/queue"
)

// Queue is a mock implementation of queue.Queue. It records every submitted
// payload and optionally forwards each one to SubmitFunc.
type Queue struct {
	mu sync.Mutex

	// Err is returned by Submit when non-nil.
	Err error

	// SubmitFunc, when non-nil, is invoked for each accepted payload. It
	// runs synchronously inside Submit so tests stay deterministic.
	SubmitFunc func(ctx context.Context, payload queue.Payload) error

	// Submitted records every accepted payload in order.
	Submitted []queue.Payload
}

var _ queue.Queue = (*Queue)(nil)

// Submit implements queue.Queue.
func (q *Queue) Submit(ctx context.Context, payload queue.Payload) (string, error) {
	q.mu.Lock()
	err := q.Err
	fn := q.SubmitFunc
	if err == nil {
		q.Submitted = append(q.Submitted, payload)
	}
	n := len(q.Submitted)
	q.mu.Unlock()

	if err != nil {
		return "", err
	}
	if fn != nil {
		if err := fn(ctx, payload); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("task-%d", n), nil
}

// SubmitCount returns the number of accepted payloads so far.
func (q *Queue) SubmitCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Submitted)
}
