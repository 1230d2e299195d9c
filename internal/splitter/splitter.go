// ============================================================================
// Logsplitter Engine - Sharded-Write Pipeline
// ============================================================================
//
// Package: internal/splitter
// File: splitter.go
// Purpose: Wire the whole pipeline and drive a run to completion
//
// Topology:
//   input file → line source → keyer → router → bounded channels →
//   N workers → per-shard encoders → per-worker file pools → disk
//
// Execution Contexts:
//   - The input goroutine (internal/input) reading and decompressing
//   - The feeding goroutine (the Run caller) parsing and routing
//   - N worker goroutines, each with private pool and encoders
//   The only cross-goroutine state is the bounded channels.
//
// Descriptor Budget:
//   MaxActiveFiles is split evenly across workers (caps differ by at
//   most one), so the engine as a whole never holds more than
//   MaxActiveFiles handles.
//
// Failure Policy:
//   Input errors, invalid lines (unless Tolerant), and any worker
//   failure abort the run. On abort the worker channels are still
//   closed and joined, so no goroutine leaks and every descriptor is
//   released; partial shard files are left on disk for inspection.
//
// ============================================================================

package splitter

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/Bobxcat/logsplitter2/internal/input"
	"github.com/Bobxcat/logsplitter2/internal/metrics"
	"github.com/Bobxcat/logsplitter2/pkg/types"
)

// Defaults for Config fields left zero.
const (
	DefaultWorkers         = 4
	DefaultChannelCapacity = 128
	DefaultLowWaterMark    = 1024
	DefaultChunkSize       = 32 * 1024
)

// Config is the engine configuration for one run.
type Config struct {
	InputPath string // gzip-compressed JSON-lines input
	OutputDir string // created if missing

	Workers        int // number of worker goroutines, >= 1
	MaxActiveFiles int // global open-descriptor budget, >= Workers

	ChannelCapacity  int  // router → worker channel bound
	LowWaterMark     int  // compressed bytes buffered before a drain
	ChunkSize        int  // input read size
	CompressionLevel int  // gzip level; 0 means gzip.DefaultCompression
	Tolerant         bool // skip invalid lines instead of aborting
}

// withDefaults fills zero fields and validates the result.
func (c Config) withDefaults() (Config, error) {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxActiveFiles == 0 {
		c.MaxActiveFiles = 16 * c.Workers
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
	if c.LowWaterMark <= 0 {
		c.LowWaterMark = DefaultLowWaterMark
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = gzip.DefaultCompression
	}

	if c.InputPath == "" {
		return c, errors.New("splitter: input path is required")
	}
	if c.OutputDir == "" {
		return c, errors.New("splitter: output dir is required")
	}
	if c.Workers < 1 {
		return c, fmt.Errorf("splitter: workers must be >= 1, got %d", c.Workers)
	}
	if c.MaxActiveFiles < c.Workers {
		return c, fmt.Errorf("splitter: max active files (%d) must be >= workers (%d)",
			c.MaxActiveFiles, c.Workers)
	}
	return c, nil
}

// Summary reports what a completed run did.
type Summary struct {
	LinesRead    uint64
	LinesRouted  uint64
	InvalidLines uint64
	Shards       int
	Elapsed      time.Duration
}

// Run executes one complete split: every record read from the input is
// routed, written, and finalized, and every output file durably closed.
// log and mc may be nil.
func Run(cfg Config, log *logrus.Entry, mc *metrics.Collector) (Summary, error) {
	start := time.Now()

	cfg, err := cfg.withDefaults()
	if err != nil {
		return Summary{}, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return Summary{}, fmt.Errorf("splitter: create output dir: %w", err)
	}

	src, err := input.Open(cfg.InputPath, input.Options{
		ChunkSize: cfg.ChunkSize,
		Log:       log,
	})
	if err != nil {
		return Summary{}, err
	}

	// Spread the descriptor budget across workers.
	caps := evenPartition(cfg.Workers, cfg.MaxActiveFiles)
	workers := make([]*worker, cfg.Workers)
	for i := range workers {
		workers[i] = newWorker(i, cfg.OutputDir, caps[i], cfg.ChannelCapacity,
			cfg.CompressionLevel, cfg.LowWaterMark, log, mc)
		go workers[i].run()
	}
	rt := newRouter(workers, log, mc)

	log.WithFields(logrus.Fields{
		"input":            cfg.InputPath,
		"output_dir":       cfg.OutputDir,
		"workers":          cfg.Workers,
		"max_active_files": cfg.MaxActiveFiles,
	}).Info("split started")

	var sum Summary
	feed := func() error {
		for res := range src.Lines() {
			if res.Err != nil {
				return res.Err
			}
			sum.LinesRead++
			mc.RecordLineRead()

			rec, err := types.ParseLine(res.Text)
			if err != nil {
				sum.InvalidLines++
				mc.RecordInvalidLine()
				if cfg.Tolerant {
					log.WithError(err).Warn("skipping invalid line")
					continue
				}
				return err
			}

			if err := rt.route(rec); err != nil {
				return err
			}
			sum.LinesRouted++
		}
		return nil
	}

	feedErr := feed()
	if feedErr != nil {
		// Unblock the input goroutine so it can close its file; its
		// channel closes once it drains.
		go func() {
			for range src.Lines() {
			}
		}()
	}
	// Close and join the workers whether or not the feed failed; this
	// finalizes encoders, drains the pools, and releases every handle.
	finishErr := rt.finish()

	if feedErr != nil {
		return sum, feedErr
	}
	if finishErr != nil {
		return sum, finishErr
	}

	sum.Shards = rt.shardCount()
	sum.Elapsed = time.Since(start)
	mc.SetRunDuration(sum.Elapsed.Seconds())

	log.WithFields(logrus.Fields{
		"lines":   sum.LinesRouted,
		"invalid": sum.InvalidLines,
		"shards":  sum.Shards,
		"elapsed": sum.Elapsed.Round(time.Millisecond),
	}).Info("split finished")

	return sum, nil
}

// evenPartition splits sum into buckets values that differ by at most
// one and add up to sum.
func evenPartition(buckets, sum int) []int {
	caps := make([]int, buckets)
	for i := range caps {
		caps[i] = sum / buckets
	}
	for i := 0; i < sum%buckets; i++ {
		caps[i]++
	}
	return caps
}
