// ============================================================================
// Logsplitter File Pool - Bounded Shard File Handle Cache
// ============================================================================
//
// Package: internal/splitter
// File: filepool.go
// Purpose: Cap open descriptors while serving many more logical shards
//
// Shard Lifecycle (per pool):
//
//   Unseen ──take──> Taken <──take/give──> Idle
//                                            │ evict
//                                            ▼
//                                 Inactive (sync+close in flight)
//                                            │ take (awaits close, reopens)
//                                            ▼
//                                          Taken
//
// Invariants:
//   1. A key is in at most one of {taken, idle, inactive} at any instant
//   2. |taken| + |idle| <= maxOpen; inactive entries hold no descriptor
//   3. The idle queue lists exactly the idle keys, FIFO by return time
//   4. A reopen awaits the key's in-flight close before any new write
//   5. The append cursor is monotonic and equals bytes written
//
// Eviction Policy:
//   Approximate LRU: give() appends to the back of the idle queue, and
//   eviction pops the front — the least-recently-returned handle. In
//   the worker loop every take is immediately followed by a give, so
//   return order tracks use order closely enough.
//
// Close Semantics:
//   Eviction issues sync-all then close on a helper goroutine so the
//   worker keeps streaming. The inactive entry tracks the in-flight
//   close; a rapid evict-then-reopen of the same key blocks on it,
//   which keeps OS write-back from racing the reopen.
//
// Concurrency:
//   One pool belongs to one worker goroutine. Only the close helpers
//   run concurrently, and they touch nothing but their own file and
//   their entry's err field and done channel.
//
// Failure Modes:
//   All I/O errors are fatal for the run; there is no recovery path for
//   a half-written shard. Precondition failures wrap ErrInvariant.
//
// ============================================================================

package splitter

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Bobxcat/logsplitter2/internal/metrics"
	"github.com/Bobxcat/logsplitter2/pkg/types"
)

// zeroWriteBudget is how many consecutive zero-byte writes a handle
// tolerates before the run is declared stuck.
const zeroWriteBudget = 3

// poolHandle is exclusive append access to one open shard file. It must
// be returned to its pool with give; it is never closed directly.
type poolHandle struct {
	key    types.ShardKey
	file   *os.File
	cursor int64 // bytes successfully written to this shard
}

// writeAll appends p at the handle's cursor, looping until every byte
// is written. Short writes advance and retry; a run of zero-byte writes
// exhausts the budget and fails.
func (h *poolHandle) writeAll(p []byte) error {
	zeroes := 0
	for len(p) > 0 {
		n, err := h.file.WriteAt(p, h.cursor)
		if err != nil {
			return fmt.Errorf("splitter: write %s at %d: %w", h.key, h.cursor, err)
		}
		if n == 0 {
			zeroes++
			if zeroes >= zeroWriteBudget {
				return fmt.Errorf("%w: shard %s at offset %d", ErrZeroWrite, h.key, h.cursor)
			}
			continue
		}
		zeroes = 0
		h.cursor += int64(n)
		p = p[n:]
	}
	return nil
}

// inactiveEntry remembers a shard whose descriptor was evicted: the
// append cursor, and the still-pending sync+close.
type inactiveEntry struct {
	cursor int64
	done   chan struct{} // closed by the helper once sync+close finished
	err    error         // set before done closes
}

// filePool caches open shard files for one worker, bounded by maxOpen.
type filePool struct {
	dir     string
	maxOpen int

	idleQueue []string               // key names, FIFO by return time
	idle      map[string]*poolHandle // open but not in use
	taken     map[string]struct{}    // in use by the worker
	inactive  map[string]*inactiveEntry

	finished bool

	log     *logrus.Entry
	metrics *metrics.Collector
}

func newFilePool(dir string, maxOpen int, log *logrus.Entry, mc *metrics.Collector) *filePool {
	return &filePool{
		dir:      dir,
		maxOpen:  maxOpen,
		idle:     make(map[string]*poolHandle),
		taken:    make(map[string]struct{}),
		inactive: make(map[string]*inactiveEntry),
		log:      log,
		metrics:  mc,
	}
}

// openFiles counts descriptors the pool is accountable for.
func (p *filePool) openFiles() int { return len(p.idle) + len(p.taken) }

// handleCount reports open descriptors; finish must leave it at zero.
func (p *filePool) handleCount() int { return p.openFiles() }

// take returns exclusive append access to key's file, creating it on
// first sight or reopening it at the remembered cursor if it was
// evicted. The handle must be returned with give.
func (p *filePool) take(key types.ShardKey) (*poolHandle, error) {
	name := key.Name()

	if p.finished {
		return nil, fmt.Errorf("%w: take %s", ErrPoolFinished, key)
	}
	if _, ok := p.taken[name]; ok {
		return nil, fmt.Errorf("%w: take of already-taken shard %s", ErrInvariant, key)
	}
	if len(p.taken) >= p.maxOpen {
		return nil, fmt.Errorf("%w: all %d handles taken", ErrInvariant, p.maxOpen)
	}

	// Idle: the file is open and waiting.
	if h, ok := p.idle[name]; ok {
		p.removeFromIdleQueue(name)
		delete(p.idle, name)
		p.taken[name] = struct{}{}
		return h, nil
	}

	// Inactive: the descriptor was evicted; await the close, reopen at
	// the remembered cursor.
	if ent, ok := p.inactive[name]; ok {
		if p.openFiles() >= p.maxOpen {
			if err := p.evictOne(); err != nil {
				return nil, err
			}
		}
		<-ent.done
		if ent.err != nil {
			return nil, ent.err
		}
		delete(p.inactive, name)

		f, err := os.OpenFile(key.PathTo(p.dir), os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("splitter: reopen shard %s: %w", key, err)
		}
		p.taken[name] = struct{}{}
		p.metrics.RecordReopen()
		p.metrics.IncOpenHandles()
		return &poolHandle{key: key, file: f, cursor: ent.cursor}, nil
	}

	// New: create (truncating — no cross-run append).
	if p.openFiles() >= p.maxOpen {
		if err := p.evictOne(); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(key.PathTo(p.dir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("splitter: create shard %s: %w", key, err)
	}
	p.taken[name] = struct{}{}
	p.metrics.RecordShardCreated()
	p.metrics.IncOpenHandles()
	return &poolHandle{key: key, file: f, cursor: 0}, nil
}

// give returns a taken handle, making it the most recently used idle
// entry.
func (p *filePool) give(h *poolHandle) error {
	name := h.key.Name()
	if _, ok := p.taken[name]; !ok {
		return fmt.Errorf("%w: give of shard %s that was not taken", ErrInvariant, h.key)
	}
	delete(p.taken, name)
	p.idle[name] = h
	p.idleQueue = append(p.idleQueue, name)
	return nil
}

// evictOne closes the least-recently-returned idle handle: it moves the
// entry to inactive and starts sync-all + close on a helper goroutine.
func (p *filePool) evictOne() error {
	if len(p.idleQueue) == 0 {
		return fmt.Errorf("%w: descriptor budget exhausted with no idle file to evict", ErrInvariant)
	}
	name := p.idleQueue[0]
	p.idleQueue = p.idleQueue[1:]

	h, ok := p.idle[name]
	if !ok {
		return fmt.Errorf("%w: idle queue lists %s but idle map does not", ErrInvariant, name)
	}
	delete(p.idle, name)

	if _, dup := p.inactive[name]; dup {
		return fmt.Errorf("%w: shard %s already inactive", ErrInvariant, name)
	}
	ent := &inactiveEntry{cursor: h.cursor, done: make(chan struct{})}
	p.inactive[name] = ent

	go func(f *os.File) {
		defer close(ent.done)
		if err := f.Sync(); err != nil {
			ent.err = fmt.Errorf("splitter: sync shard %s: %w", name, err)
			f.Close()
			return
		}
		if err := f.Close(); err != nil {
			ent.err = fmt.Errorf("splitter: close shard %s: %w", name, err)
		}
	}(h.file)

	p.metrics.RecordEviction()
	p.metrics.DecOpenHandles()
	return nil
}

// finish drives the orderly drain: every idle handle is synced and
// closed, every in-flight close is awaited. On return the pool holds no
// handles and no taken entries.
func (p *filePool) finish() error {
	if p.finished {
		return ErrPoolFinished
	}
	if len(p.taken) != 0 {
		return fmt.Errorf("%w: finish with %d shards still taken", ErrInvariant, len(p.taken))
	}

	for len(p.idleQueue) > 0 {
		if err := p.evictOne(); err != nil {
			return err
		}
	}

	var firstErr error
	for name, ent := range p.inactive {
		<-ent.done
		if ent.err != nil && firstErr == nil {
			firstErr = ent.err
		}
		delete(p.inactive, name)
	}

	if n := p.handleCount(); n != 0 {
		return fmt.Errorf("%w: finish left %d handles open", ErrInvariant, n)
	}

	p.finished = true
	return firstErr
}

// removeFromIdleQueue drops the single occurrence of name.
func (p *filePool) removeFromIdleQueue(name string) {
	for i, q := range p.idleQueue {
		if q == name {
			p.idleQueue = append(p.idleQueue[:i], p.idleQueue[i+1:]...)
			return
		}
	}
}
