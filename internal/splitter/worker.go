// ============================================================================
// Logsplitter Worker - Per-Shard Compression and Append
// ============================================================================
//
// Package: internal/splitter
// File: worker.go
// Purpose: One of N goroutines each owning a slice of shards, a private
//          file pool, and a map of persistent encoders
//
// Main Loop:
//   1. Receive the next record from the bounded input channel
//   2. Feed its text into the shard's encoder (created on first sight)
//   3. Once the encoder has emitted at least lowWater compressed bytes,
//      take the shard's file, append, give it back
//   4. When the channel closes (end of input): finalize every encoder,
//      append the trailing bytes, then drain the pool
//
// Shutdown Handshake:
//   The router closes the input channel; there is no sentinel message.
//   The worker signals completion by closing done. A worker that hits a
//   fatal error stops writing, records the error, closes quit so the
//   router can abort, and keeps draining its channel so the router's
//   sends never block.
//
// Ownership:
//   Encoders, pool, and every file handle are touched only by this
//   goroutine. Nothing here is shared with other workers.
//
// ============================================================================

package splitter

import (
	"github.com/sirupsen/logrus"

	"github.com/Bobxcat/logsplitter2/internal/metrics"
	"github.com/Bobxcat/logsplitter2/pkg/types"
)

// worker owns one shard slice: an input channel, a file pool, and the
// per-shard encoders.
type worker struct {
	id       int
	in       chan types.LineRecord
	pool     *filePool
	encoders map[string]*shardEncoder

	level    int // gzip compression level
	lowWater int // drain threshold in compressed bytes

	quit    chan struct{} // closed on fatal error, before failure is read
	done    chan struct{} // closed when the goroutine exits
	failure error         // first fatal error; read only after quit or done

	log     *logrus.Entry
	metrics *metrics.Collector
}

func newWorker(id int, dir string, maxOpen, chanCap, level, lowWater int, log *logrus.Entry, mc *metrics.Collector) *worker {
	wlog := log.WithField("worker", id)
	return &worker{
		id:       id,
		in:       make(chan types.LineRecord, chanCap),
		pool:     newFilePool(dir, maxOpen, wlog, mc),
		encoders: make(map[string]*shardEncoder),
		level:    level,
		lowWater: lowWater,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      wlog,
		metrics:  mc,
	}
}

// run is the worker goroutine body.
func (w *worker) run() {
	defer close(w.done)

	for rec := range w.in {
		if w.failure != nil {
			// Already failed: keep draining so the router never blocks
			// on a dead worker.
			continue
		}
		if err := w.handle(rec); err != nil {
			w.fail(err)
		}
	}

	if w.failure != nil {
		// Close whatever the pool still holds; the shards stay partial.
		_ = w.pool.finish()
		return
	}
	if err := w.finish(); err != nil {
		w.fail(err)
	}
}

// fail records the first fatal error and signals the router.
func (w *worker) fail(err error) {
	w.log.WithError(err).Error("worker failed")
	w.failure = err
	close(w.quit)
}

// handle processes one record: encode, and drain to disk once the
// compressed backlog crosses the low-water mark.
func (w *worker) handle(rec types.LineRecord) error {
	name := rec.Key.Name()
	enc, ok := w.encoders[name]
	if !ok {
		var err error
		enc, err = newShardEncoder(rec.Key, w.level)
		if err != nil {
			return err
		}
		w.encoders[name] = enc
	}

	if err := enc.encode(rec.Text); err != nil {
		return err
	}

	if enc.pending() < w.lowWater {
		return nil
	}
	return w.append(enc.key, enc.drain())
}

// append takes the shard's file, writes buf fully, and returns the file
// to the pool.
func (w *worker) append(key types.ShardKey, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	h, err := w.pool.take(key)
	if err != nil {
		return err
	}
	if err := h.writeAll(buf); err != nil {
		// The handle is lost mid-write; the run is over anyway. Give it
		// back so the pool's drain can still close the descriptor.
		_ = w.pool.give(h)
		return err
	}
	w.metrics.AddBytesWritten(len(buf))
	return w.pool.give(h)
}

// finish finalizes every encoder (writing each gzip trailer strictly
// after all of that shard's payload) and drains the pool.
func (w *worker) finish() error {
	for _, enc := range w.encoders {
		tail, err := enc.finalize()
		if err != nil {
			return err
		}
		if err := w.append(enc.key, tail); err != nil {
			return err
		}
	}

	if err := w.pool.finish(); err != nil {
		return err
	}

	w.log.WithField("shards", len(w.encoders)).Debug("worker drained")
	return nil
}
