package integration

// ============================================================================
// Logsplitter End-to-End Integration Tests
// Purpose: Run the full pipeline against real files and verify the
//          output contract: partition completeness, per-shard order,
//          byte fidelity, descriptor bounds, and rerun determinism
// ============================================================================

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bobxcat/logsplitter2/internal/gen"
	"github.com/Bobxcat/logsplitter2/internal/splitter"
	"github.com/Bobxcat/logsplitter2/pkg/types"
)

// ============================================================================
// Helpers
// ============================================================================

func line(service, env, ts string) string {
	return fmt.Sprintf(`{"@meta":{"service":%q,"env":%q},"@timestamp":%q}`, service, env, ts)
}

// writeInput compresses lines (newline-terminated) into a single-member
// gzip file.
func writeInput(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	for _, ln := range lines {
		_, err := zw.Write([]byte(ln + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// readShard decompresses one output file into its lines (without
// newlines). It also asserts the file decompresses cleanly and, when
// not empty, its content ends in a newline.
func readShard(t *testing.T, dir, name string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name+".json.gz"))
	require.NoError(t, err)

	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = out.ReadFrom(zr)
	require.NoError(t, err)
	require.NoError(t, zr.Close())

	content := out.String()
	if content == "" {
		return nil
	}
	require.True(t, strings.HasSuffix(content, "\n"), "shard %s must end in a newline", name)

	var lines []string
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func listShards(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json.gz"))
	}
	sort.Strings(names)
	return names
}

// ============================================================================
// Scenario Tests
// ============================================================================

// TestSingleShard: three lines, one key, one file, original order.
func TestSingleShard(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")
	out := filepath.Join(dir, "out")

	lines := []string{
		line("a", "e", "2024-01-01T00:00:00Z"),
		line("a", "e", "2024-01-01T05:00:00Z"),
		line("a", "e", "2024-01-01T23:59:59Z"),
	}
	writeInput(t, in, lines)

	sum, err := splitter.Run(splitter.Config{
		InputPath: in, OutputDir: out,
		Workers: 1, MaxActiveFiles: 2,
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Shards)

	assert.Equal(t, []string{"a_e_2024-01-01"}, listShards(t, out))
	assert.Equal(t, lines, readShard(t, out, "a_e_2024-01-01"))
}

// TestDateSplit: same service/env, two dates, two files.
func TestDateSplit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")
	out := filepath.Join(dir, "out")

	writeInput(t, in, []string{
		line("a", "e", "2024-01-01T12:00:00Z"),
		line("a", "e", "2024-01-02T12:00:00Z"),
	})

	_, err := splitter.Run(splitter.Config{
		InputPath: in, OutputDir: out,
		Workers: 2, MaxActiveFiles: 4,
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a_e_2024-01-01", "a_e_2024-01-02"}, listShards(t, out))
	assert.Len(t, readShard(t, out, "a_e_2024-01-01"), 1)
	assert.Len(t, readShard(t, out, "a_e_2024-01-02"), 1)
}

// TestOffsetDate: 23:30 at -05:00 buckets under the offset's local
// date, not the UTC date.
func TestOffsetDate(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")
	out := filepath.Join(dir, "out")

	writeInput(t, in, []string{line("a", "e", "2024-01-01T23:30:00-05:00")})

	_, err := splitter.Run(splitter.Config{
		InputPath: in, OutputDir: out,
		Workers: 1, MaxActiveFiles: 2,
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a_e_2024-01-01"}, listShards(t, out))
}

// TestEvictionPressure: 10 interleaved keys through a single worker
// holding at most 2 descriptors; every shard must still come out whole
// and in order.
func TestEvictionPressure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")
	out := filepath.Join(dir, "out")

	var lines []string
	want := make(map[string][]string)
	for round := 0; round < 25; round++ {
		for k := 0; k < 10; k++ {
			svc := fmt.Sprintf("svc%d", k)
			ln := fmt.Sprintf(`{"@meta":{"service":%q,"env":"e"},"@timestamp":"2024-01-01T00:00:00Z","round":%d}`, svc, round)
			lines = append(lines, ln)
			name := svc + "_e_2024-01-01"
			want[name] = append(want[name], ln)
		}
	}
	writeInput(t, in, lines)

	// A tiny low-water mark forces frequent pool traffic and therefore
	// constant eviction churn.
	_, err := splitter.Run(splitter.Config{
		InputPath: in, OutputDir: out,
		Workers: 1, MaxActiveFiles: 2,
		LowWaterMark: 16,
	}, nil, nil)
	require.NoError(t, err)

	require.Len(t, listShards(t, out), 10)
	for name, wantLines := range want {
		assert.Equal(t, wantLines, readShard(t, out, name), "shard %s", name)
	}
}

// TestRerunDeterminism: running the same input twice produces identical
// decompressed outputs (shutdown left nothing half-written).
func TestRerunDeterminism(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")
	require.NoError(t, gen.WriteFile(in, gen.Options{Lines: 500, Seed: 42, Members: 3}))

	runOnce := func(out string) map[string][]string {
		_, err := splitter.Run(splitter.Config{
			InputPath: in, OutputDir: out,
			Workers: 3, MaxActiveFiles: 6,
			LowWaterMark: 64,
		}, nil, nil)
		require.NoError(t, err)

		got := make(map[string][]string)
		for _, name := range listShards(t, out) {
			got[name] = readShard(t, out, name)
		}
		return got
	}

	first := runOnce(filepath.Join(dir, "out1"))
	second := runOnce(filepath.Join(dir, "out2"))
	assert.Equal(t, first, second)
}

// TestInvalidLineStrict: a record without @meta.service aborts the run.
func TestInvalidLineStrict(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")

	writeInput(t, in, []string{
		line("a", "e", "2024-01-01T00:00:00Z"),
		`{"@meta":{"env":"e"},"@timestamp":"2024-01-01T00:00:00Z"}`,
		line("a", "e", "2024-01-01T00:00:02Z"),
	})

	_, err := splitter.Run(splitter.Config{
		InputPath: in, OutputDir: filepath.Join(dir, "out"),
		Workers: 1, MaxActiveFiles: 2,
	}, nil, nil)
	require.Error(t, err)

	var invalid *types.InvalidLineError
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, invalid.Line, `"env":"e"`)
}

// TestInvalidLineTolerant: the bad record is skipped, everything else
// is partitioned correctly.
func TestInvalidLineTolerant(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")
	out := filepath.Join(dir, "out")

	good1 := line("a", "e", "2024-01-01T00:00:00Z")
	good2 := line("a", "e", "2024-01-01T00:00:02Z")
	writeInput(t, in, []string{
		good1,
		`{"@meta":{"env":"e"},"@timestamp":"2024-01-01T00:00:00Z"}`,
		good2,
	})

	sum, err := splitter.Run(splitter.Config{
		InputPath: in, OutputDir: out,
		Workers: 1, MaxActiveFiles: 2,
		Tolerant: true,
	}, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.InvalidLines)
	assert.EqualValues(t, 2, sum.LinesRouted)

	assert.Equal(t, []string{good1, good2}, readShard(t, out, "a_e_2024-01-01"))
}

// ============================================================================
// Property Tests over Generated Corpora
// ============================================================================

// TestRoundTripGeneratedCorpus checks the big three properties on a
// generated input: partition completeness, per-shard order, and byte
// fidelity.
func TestRoundTripGeneratedCorpus(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")
	out := filepath.Join(dir, "out")

	require.NoError(t, gen.WriteFile(in, gen.Options{Lines: 2000, Seed: 11, Members: 2, Days: 4}))

	// Expected partition, computed independently of the engine.
	want := make(map[string][]string)
	var total int
	{
		f, err := os.Open(in)
		require.NoError(t, err)
		zr, err := gzip.NewReader(f)
		require.NoError(t, err)
		sc := bufio.NewScanner(zr)
		sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
		for sc.Scan() {
			rec, err := types.ParseLine(sc.Text())
			require.NoError(t, err)
			want[rec.Key.Name()] = append(want[rec.Key.Name()], sc.Text())
			total++
		}
		require.NoError(t, sc.Err())
		require.NoError(t, f.Close())
	}
	require.Equal(t, 2000, total)

	sum, err := splitter.Run(splitter.Config{
		InputPath: in, OutputDir: out,
		Workers: 4, MaxActiveFiles: 8,
		LowWaterMark: 256,
	}, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, total, sum.LinesRouted)
	assert.Equal(t, len(want), sum.Shards)

	shards := listShards(t, out)
	require.Len(t, shards, len(want))
	for _, name := range shards {
		assert.Equal(t, want[name], readShard(t, out, name), "shard %s", name)
	}
}

// TestLargeKeySpread runs many more distinct shards than the descriptor
// budget across several workers.
func TestLargeKeySpread(t *testing.T) {
	if testing.Short() {
		t.Skip("large corpus")
	}

	dir := t.TempDir()
	in := filepath.Join(dir, "in.json.gz")
	out := filepath.Join(dir, "out")

	require.NoError(t, gen.WriteFile(in, gen.Options{
		Lines: 5000, Seed: 99, Days: 7,
		Services: []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7"},
		Envs:     []string{"prod", "staging", "dev", "qa"},
	}))

	sum, err := splitter.Run(splitter.Config{
		InputPath: in, OutputDir: out,
		Workers: 4, MaxActiveFiles: 4, // one descriptor per worker
		LowWaterMark: 32,
	}, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, sum.LinesRouted)

	shards := listShards(t, out)
	assert.Greater(t, len(shards), 4, "should produce far more shards than descriptors")

	lines := 0
	for _, name := range shards {
		lines += len(readShard(t, out, name))
	}
	assert.Equal(t, 5000, lines)
}
