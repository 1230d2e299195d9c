// ============================================================================
// Logsplitter Router - Sticky Shard-to-Worker Assignment
// ============================================================================
//
// Package: internal/splitter
// File: router.go
// Purpose: Map each shard key to a stable worker and forward records
//          over that worker's bounded channel
//
// Assignment:
//   First sight of a key takes the current round-robin cursor; the
//   cursor then advances modulo N. The assignment never changes —
//   sticky routing is what lets each worker's encoders and file pool
//   stay single-threaded and lock-free. Distinct keys may collide on a
//   worker; load balances statistically.
//
// Backpressure:
//   route blocks when the target worker's channel is full. If the
//   worker has failed, its quit channel is closed and route returns the
//   worker's error instead of blocking forever.
//
// Shutdown:
//   finish closes every worker channel and waits for every worker's
//   done signal — a close handshake, not a sentinel message and not a
//   poll on channel emptiness.
//
// ============================================================================

package splitter

import (
	"github.com/sirupsen/logrus"

	"github.com/Bobxcat/logsplitter2/internal/metrics"
	"github.com/Bobxcat/logsplitter2/pkg/types"
)

// router lives on the feeding goroutine; the assignment map is touched
// by no one else.
type router struct {
	workers  []*worker
	assigned map[string]int // key name → worker index
	next     int            // round-robin cursor

	log     *logrus.Entry
	metrics *metrics.Collector
}

func newRouter(workers []*worker, log *logrus.Entry, mc *metrics.Collector) *router {
	return &router{
		workers:  workers,
		assigned: make(map[string]int),
		log:      log.WithField("component", "router"),
		metrics:  mc,
	}
}

// route forwards rec to its sticky worker, assigning one round-robin on
// first sight. Blocks for backpressure; returns the worker's failure if
// it died instead.
func (r *router) route(rec types.LineRecord) error {
	name := rec.Key.Name()
	idx, ok := r.assigned[name]
	if !ok {
		idx = r.next
		r.next = (r.next + 1) % len(r.workers)
		r.assigned[name] = idx
	}

	w := r.workers[idx]
	select {
	case w.in <- rec:
		r.metrics.RecordLineRouted()
		return nil
	case <-w.quit:
		return w.failure
	}
}

// shardCount returns how many distinct keys have been assigned.
func (r *router) shardCount() int { return len(r.assigned) }

// finish closes every worker channel, waits for each worker to drain
// and exit, and returns the first worker failure, if any.
func (r *router) finish() error {
	for _, w := range r.workers {
		close(w.in)
	}

	var firstErr error
	for _, w := range r.workers {
		<-w.done
		if w.failure != nil && firstErr == nil {
			firstErr = w.failure
		}
	}
	return firstErr
}
