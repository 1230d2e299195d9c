// ============================================================================
// Logsplitter Test-Data Generator
// ============================================================================
//
// Package: internal/gen
// File: gen.go
// Purpose: Produce random gzip-compressed JSON-lines inputs for
//          benchmarks, demos, and the integration suite
//
// Shape:
//   Each line is one record with the three keyed fields plus filler:
//   {"@meta":{"service":...,"env":...},"@timestamp":...,"level":...,
//    "message":...}
//   Services, envs, the date window, and UTC offsets are drawn from
//   configurable alphabets, so a small input still spreads across many
//   shards. The output can be split into several concatenated gzip
//   members, which exercises the multistream decoder.
//
// Determinism:
//   The same seed yields byte-identical output, so tests can assert on
//   generated corpora.
//
// ============================================================================

package gen

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults for Options fields left zero.
var (
	DefaultServices = []string{"api", "web", "auth", "billing", "search"}
	DefaultEnvs     = []string{"prod", "staging", "dev"}
	DefaultOffsets  = []string{"Z", "+02:00", "-05:00", "+09:00"}
	DefaultLevels   = []string{"debug", "info", "warn", "error"}
)

// Options tunes the generated corpus.
type Options struct {
	Lines    int      // number of records; required, > 0
	Seed     int64    // RNG seed; same seed, same bytes
	Members  int      // gzip members to split the output into (default 1)
	Services []string // service alphabet
	Envs     []string // env alphabet
	Offsets  []string // UTC offsets applied to timestamps
	Days     int      // date window width starting at StartDay (default 3)
	StartDay string   // first calendar day, "2006-01-02" (default 2024-01-01)
}

func (o Options) withDefaults() (Options, error) {
	if o.Lines <= 0 {
		return o, fmt.Errorf("gen: lines must be > 0, got %d", o.Lines)
	}
	if o.Members <= 0 {
		o.Members = 1
	}
	if o.Members > o.Lines {
		o.Members = o.Lines
	}
	if len(o.Services) == 0 {
		o.Services = DefaultServices
	}
	if len(o.Envs) == 0 {
		o.Envs = DefaultEnvs
	}
	if len(o.Offsets) == 0 {
		o.Offsets = DefaultOffsets
	}
	if o.Days <= 0 {
		o.Days = 3
	}
	if o.StartDay == "" {
		o.StartDay = "2024-01-01"
	}
	if _, err := time.Parse("2006-01-02", o.StartDay); err != nil {
		return o, fmt.Errorf("gen: bad start day: %w", err)
	}
	return o, nil
}

// record is the generated line shape. Field order is fixed so output is
// reproducible.
type record struct {
	Meta struct {
		Service string `json:"service"`
		Env     string `json:"env"`
	} `json:"@meta"`
	Timestamp string `json:"@timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Write generates the corpus onto w as opts.Members concatenated gzip
// members.
func Write(w io.Writer, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	start, _ := time.Parse("2006-01-02", opts.StartDay)

	perMember := opts.Lines / opts.Members
	remainder := opts.Lines % opts.Members

	for m := 0; m < opts.Members; m++ {
		n := perMember
		if m < remainder {
			n++
		}

		zw := gzip.NewWriter(w)
		for i := 0; i < n; i++ {
			line, err := randomLine(rng, opts, start)
			if err != nil {
				return err
			}
			if _, err := zw.Write(append(line, '\n')); err != nil {
				return fmt.Errorf("gen: compress: %w", err)
			}
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("gen: close member: %w", err)
		}
	}
	return nil
}

// WriteFile generates the corpus into a file at path.
func WriteFile(path string, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gen: create %s: %w", path, err)
	}
	if err := Write(f, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func randomLine(rng *rand.Rand, opts Options, start time.Time) ([]byte, error) {
	var rec record
	rec.Meta.Service = opts.Services[rng.Intn(len(opts.Services))]
	rec.Meta.Env = opts.Envs[rng.Intn(len(opts.Envs))]

	day := start.AddDate(0, 0, rng.Intn(opts.Days))
	secs := rng.Intn(24 * 60 * 60)
	offset := opts.Offsets[rng.Intn(len(opts.Offsets))]
	rec.Timestamp = fmt.Sprintf("%sT%02d:%02d:%02d%s",
		day.Format("2006-01-02"), secs/3600, (secs/60)%60, secs%60, offset)

	rec.Level = DefaultLevels[rng.Intn(len(DefaultLevels))]
	rec.Message = randomMessage(rng)

	line, err := json.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("gen: marshal: %w", err)
	}
	return line, nil
}

var words = []string{
	"request", "completed", "timeout", "retrying", "connection",
	"accepted", "rejected", "cache", "miss", "hit", "upstream",
	"latency", "shard", "flush", "queue", "drained",
}

func randomMessage(rng *rand.Rand) string {
	n := 3 + rng.Intn(8)
	msg := make([]byte, 0, 64)
	for i := 0; i < n; i++ {
		if i > 0 {
			msg = append(msg, ' ')
		}
		msg = append(msg, words[rng.Intn(len(words))]...)
	}
	return string(msg)
}
