// Package lane serializes skill and workflow execution per session.
//
// A session's dataset mapping is mutable only through skill execution;
// without this guard, two concurrent tool calls on the same session
// could race on it. One advisory lock exists per session ID, created
// lazily and retained until the session is torn down. Invocations for
// different sessions proceed fully in parallel.
package lane

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queue is the per-session mutual-exclusion guard.
type Queue struct {
	lanes  map[string]chan struct{}
	logger *zap.Logger
	mu     sync.Mutex

	// onWait, when set, observes lane acquisition wait time.
	onWait func(time.Duration)
}

// NewQueue creates an empty lane queue.
func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		lanes:  make(map[string]chan struct{}),
		logger: logger.With(zap.String("component", "lane_queue")),
	}
}

// SetWaitObserver installs a callback invoked with the time each
// execution spent waiting for its lane.
func (q *Queue) SetWaitObserver(fn func(time.Duration)) {
	q.onWait = fn
}

// lane returns the session's lock channel, creating it on first use.
// The channel has capacity one; holding the token means holding the lane.
func (q *Queue) lane(sessionID string) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[sessionID]
	if !ok {
		l = make(chan struct{}, 1)
		q.lanes[sessionID] = l
	}
	return l
}

// Execute runs fn while holding the session's lane, guaranteeing at
// most one in-flight execution per session. It blocks until the lane is
// free or ctx is done.
func (q *Queue) Execute(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	l := q.lane(sessionID)

	start := time.Now()
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if q.onWait != nil {
		q.onWait(time.Since(start))
	}
	defer func() { <-l }()

	return fn(ctx)
}

// TryExecute runs fn only if the lane is immediately free, reporting
// whether it ran.
func (q *Queue) TryExecute(ctx context.Context, sessionID string, fn func(ctx context.Context) error) (bool, error) {
	l := q.lane(sessionID)
	select {
	case l <- struct{}{}:
	default:
		return false, nil
	}
	defer func() { <-l }()
	return true, fn(ctx)
}

// Remove releases the session's lane on teardown. A lane that is still
// held is left in place; the caller is expected to tear down only idle
// sessions.
func (q *Queue) Remove(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if l, ok := q.lanes[sessionID]; ok {
		select {
		case l <- struct{}{}:
			// Lane was free; safe to drop.
			delete(q.lanes, sessionID)
		default:
			q.logger.Warn("lane still busy at removal, leaving in place",
				zap.String("session_id", sessionID))
		}
	}
}

// Len returns the number of lanes currently tracked.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}
