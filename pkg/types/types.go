// ============================================================================
// Logsplitter Core Type Definitions
// ============================================================================
//
// Package: pkg/types
// Purpose: Core domain models shared across the engine
//
// Core Types:
//   - ShardKey: Canonical shard identity "{service}_{env}_{YYYY-MM-DD}"
//   - LineRecord: A parsed input line bound to its shard
//   - InvalidLineError: Parse failure carrying the offending line
//
// Design Principles:
//   1. Keys are immutable value objects, cheap to copy
//   2. Key equality is name equality; a precomputed xxhash serves as a
//      fast-path fingerprint for comparison and routing
//   3. Line text is never rewritten, only routed
//
// ============================================================================

// Package types defines core domain models for the logsplitter engine
package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// shardDateLayout is the calendar-date portion kept from @timestamp.
const shardDateLayout = "2006-01-02"

// ShardKey identifies one output shard. Two keys are equal iff their
// canonical names are equal; the hash is a stable non-cryptographic
// fingerprint of the name.
type ShardKey struct {
	name string
	hash uint64
}

// NewShardKey builds a key from its canonical name.
func NewShardKey(name string) ShardKey {
	return ShardKey{
		name: name,
		hash: xxhash.Sum64String(name),
	}
}

// Name returns the canonical name "{service}_{env}_{YYYY-MM-DD}".
func (k ShardKey) Name() string { return k.name }

// Hash returns the precomputed fingerprint of the name. Identical names
// always produce identical hashes; distinct names may collide, so the
// hash is an equality fast path, never an equality proof.
func (k ShardKey) Hash() uint64 { return k.hash }

// Equal reports whether both keys name the same shard.
func (k ShardKey) Equal(other ShardKey) bool {
	return k.hash == other.hash && k.name == other.name
}

// IsZero reports whether the key is the zero value.
func (k ShardKey) IsZero() bool { return k.name == "" }

// Filename returns the output file name for this shard.
func (k ShardKey) Filename() string { return k.name + ".json.gz" }

// PathTo returns the output file path under dir.
func (k ShardKey) PathTo(dir string) string {
	return filepath.Join(dir, k.Filename())
}

func (k ShardKey) String() string { return k.name }

// LineRecord pairs a shard key with the original line text. Text always
// carries exactly one trailing newline; the engine appends it verbatim.
type LineRecord struct {
	Key  ShardKey
	Text string
}

// InvalidLineError reports a line that could not be keyed: malformed
// JSON, a missing or wrong-typed required field, or an unparseable
// timestamp. It keeps the offending line verbatim for the operator.
type InvalidLineError struct {
	Line   string
	Reason string
	Cause  error
}

func (e *InvalidLineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid line (%s): %v: %s", e.Reason, e.Cause, e.Line)
	}
	return fmt.Sprintf("invalid line (%s): %s", e.Reason, e.Line)
}

func (e *InvalidLineError) Unwrap() error { return e.Cause }

// rawRecord maps only the fields the keyer consumes; everything else in
// the record is ignored. Pointers distinguish absent from empty.
type rawRecord struct {
	Meta *struct {
		Service *string `json:"service"`
		Env     *string `json:"env"`
	} `json:"@meta"`
	Timestamp *string `json:"@timestamp"`
}

// ParseLine parses one input line (without its newline) into a
// LineRecord. The shard key is "{service}_{env}_{YYYY-MM-DD}" where the
// date is taken in the timestamp's own UTC offset, not normalized.
//
// Returns:
//   - LineRecord: key plus the original text with one trailing newline
//   - error: *InvalidLineError on any parse or schema failure
func ParseLine(line string) (LineRecord, error) {
	var raw rawRecord
	if err := json.UnmarshalFromString(line, &raw); err != nil {
		return LineRecord{}, &InvalidLineError{Line: line, Reason: "malformed JSON", Cause: err}
	}

	if raw.Meta == nil {
		return LineRecord{}, &InvalidLineError{Line: line, Reason: "missing @meta"}
	}
	if raw.Meta.Service == nil {
		return LineRecord{}, &InvalidLineError{Line: line, Reason: "missing @meta.service"}
	}
	if raw.Meta.Env == nil {
		return LineRecord{}, &InvalidLineError{Line: line, Reason: "missing @meta.env"}
	}
	if raw.Timestamp == nil {
		return LineRecord{}, &InvalidLineError{Line: line, Reason: "missing @timestamp"}
	}

	ts, err := time.Parse(time.RFC3339, *raw.Timestamp)
	if err != nil {
		return LineRecord{}, &InvalidLineError{Line: line, Reason: "unparseable @timestamp", Cause: err}
	}

	name := fmt.Sprintf("%s_%s_%s", *raw.Meta.Service, *raw.Meta.Env, ts.Format(shardDateLayout))

	// One trailing newline per record, regardless of how the line arrived.
	text := strings.TrimRight(line, "\n") + "\n"

	return LineRecord{
		Key:  NewShardKey(name),
		Text: text,
	}, nil
}
