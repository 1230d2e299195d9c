// ============================================================================
// Logsplitter Shard Encoder - Per-Shard Streaming Compression
// ============================================================================
//
// Package: internal/splitter
// File: encoder.go
// Purpose: One persistent gzip stream per shard key, decoupled from the
//          shard's file handle
//
// Lifecycle:
//   The encoder lives from the first line of its shard until worker
//   shutdown. File handles come and go underneath it (the pool evicts
//   and reopens them), but the compression state survives every
//   eviction; this is what keeps a bounded descriptor budget compatible
//   with an unbounded number of distinct shards. The encoder is
//   finalized exactly once, emitting the gzip trailer.
//
// Data Flow:
//   uncompressed line text → gzip.Writer → out buffer → drain() →
//   file pool append
//
// ============================================================================

package splitter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/Bobxcat/logsplitter2/pkg/types"
)

// shardEncoder is a streaming gzip compressor for one shard key. It is
// owned by exactly one worker and never shared.
type shardEncoder struct {
	key       types.ShardKey
	out       bytes.Buffer // compressed bytes awaiting a drain
	zw        *gzip.Writer
	finalized bool
}

// newShardEncoder creates an encoder writing at the given compression
// level (gzip.DefaultCompression for the zero-ish default).
func newShardEncoder(key types.ShardKey, level int) (*shardEncoder, error) {
	e := &shardEncoder{key: key}
	zw, err := gzip.NewWriterLevel(&e.out, level)
	if err != nil {
		return nil, fmt.Errorf("splitter: encoder for %s: %w", key, err)
	}
	e.zw = zw
	return e, nil
}

// encode feeds uncompressed line text into the stream.
func (e *shardEncoder) encode(text string) error {
	if e.finalized {
		return fmt.Errorf("%w: shard %s", ErrEncoderFinalized, e.key)
	}
	if _, err := io.WriteString(e.zw, text); err != nil {
		return fmt.Errorf("splitter: compress for %s: %w", e.key, err)
	}
	return nil
}

// pending returns how many compressed bytes the stream has emitted and
// not yet drained. The gzip writer holds partially filled blocks
// internally, so pending lags encode; that slack is bounded by the
// writer's block size.
func (e *shardEncoder) pending() int { return e.out.Len() }

// drain removes and returns all compressed bytes emitted so far.
func (e *shardEncoder) drain() []byte {
	if e.out.Len() == 0 {
		return nil
	}
	b := append([]byte(nil), e.out.Bytes()...)
	e.out.Reset()
	return b
}

// finalize closes the gzip stream, emitting any buffered blocks plus
// the trailer, and returns everything left to write. Exactly-once.
func (e *shardEncoder) finalize() ([]byte, error) {
	if e.finalized {
		return nil, fmt.Errorf("%w: shard %s", ErrEncoderFinalized, e.key)
	}
	e.finalized = true
	if err := e.zw.Close(); err != nil {
		return nil, fmt.Errorf("splitter: finalize %s: %w", e.key, err)
	}
	return e.drain(), nil
}
