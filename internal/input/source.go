// ============================================================================
// Logsplitter Line Source - Input Decompression and Line Splitting
// ============================================================================
//
// Package: internal/input
// File: source.go
// Purpose: Read a gzip-compressed log file and yield complete UTF-8 lines
//
// Pipeline Position:
//   input file → [Source] → (lines) → router
//
// How It Works:
//   1. The input file is read in fixed-size chunks
//   2. Chunks feed a streaming gzip decoder (multistream aware, so a
//      concatenation of independent gzip members decodes as one stream)
//   3. The decompressed byte stream is split on '\n'; newlines are
//      stripped from yielded lines
//   4. The trailing partial line, if any, is yielded before the stream
//      ends
//
// Concurrency:
//   The source runs on its own goroutine and communicates with the
//   consumer over a bounded channel, which provides natural
//   backpressure: when the router falls behind, reads pause.
//
// Failure Modes:
//   Unreadable input, decoder errors, and invalid UTF-8 are all fatal.
//   The error is delivered in-band as the final Result before the
//   channel closes.
//
// ============================================================================

package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

// Defaults for Options fields left zero.
const (
	DefaultChunkSize = 32 * 1024
	DefaultCapacity  = 100
)

// Result is one element of the line stream: a line or a terminal error.
// After a Result with a non-nil Err, the channel closes.
type Result struct {
	Text string // line with its newline stripped
	Err  error
}

// Options tunes the source. Zero values take the defaults above.
type Options struct {
	ChunkSize int // read size for the compressed input
	Capacity  int // bound of the line channel
	Log       *logrus.Entry
}

// Source streams decompressed lines from a .gz file.
type Source struct {
	lines chan Result
	log   *logrus.Entry
}

// Open starts reading path on a background goroutine. The returned
// source's Lines channel yields every line in input order, then an
// optional terminal error, then closes.
func Open(path string, opts Options) (*Source, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: open %s: %w", path, err)
	}

	s := &Source{
		lines: make(chan Result, opts.Capacity),
		log:   opts.Log.WithField("component", "input"),
	}

	go s.run(f, opts.ChunkSize)
	return s, nil
}

// Lines returns the bounded line channel. It closes when the input is
// exhausted or after a terminal error has been delivered.
func (s *Source) Lines() <-chan Result { return s.lines }

// run drives the read → decode → split loop and owns the file handle.
func (s *Source) run(f *os.File, chunkSize int) {
	defer close(s.lines)
	defer f.Close()

	// bufio between the file and the decoder gives the fixed-size
	// chunked reads; the decoder pulls from it on demand.
	zr, err := gzip.NewReader(bufio.NewReaderSize(f, chunkSize))
	if err != nil {
		s.lines <- Result{Err: fmt.Errorf("input: gzip header: %w", err)}
		return
	}
	defer zr.Close()

	count := 0
	br := bufio.NewReaderSize(zr, chunkSize)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			text := strings.TrimSuffix(line, "\n")
			if !utf8.ValidString(text) {
				s.lines <- Result{Err: fmt.Errorf("input: line %d: %w", count+1, ErrInvalidEncoding)}
				return
			}
			// A partial trailing line (err == io.EOF here) is still
			// yielded: the last record may lack its newline.
			s.lines <- Result{Text: text}
			count++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			s.lines <- Result{Err: fmt.Errorf("input: decompress: %w", err)}
			return
		}
	}

	s.log.WithField("lines", count).Debug("input drained")
}
