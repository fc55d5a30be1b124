package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mxwsort/internal/fsutil"
	"github.com/banshee-data/mxwsort/internal/qc"
	"github.com/banshee-data/mxwsort/internal/rawstore"
	"github.com/banshee-data/mxwsort/internal/sorter"
)

// testVolume builds a two-channel, 40-frame, 16-bit unsigned well000 at
// 1 kHz.
func testVolume() *rawstore.MemVolume {
	raw := make([][]float64, 2)
	for ch := range raw {
		raw[ch] = make([]float64, 40)
		for i := range raw[ch] {
			raw[ch][i] = 32768 + float64(100*(ch+1)*(i%4))
		}
	}
	vol := rawstore.NewMemVolume()
	vol.AddWell(rawstore.WellSpec{
		Stream: "well000",
		FS:     1000,
		Mapping: []rawstore.ChannelMapping{
			{Channel: 0, Electrode: 0, X: 10, Y: 20},
			{Channel: 1, Electrode: 1, X: 30, Y: 40},
		},
		Raw2D: raw,
	})
	return vol
}

func testFixture() *sorter.Fixture {
	return &sorter.Fixture{
		SpikeTimes:    []int64{3, 11, 25, 33},
		SpikeClusters: []int64{0, 1, 0, 1},
	}
}

// testConfig keeps the band inside the 1 kHz test volume's Nyquist range.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DurS = 0
	cfg.BpMinHz = 100
	return cfg
}

func newTestRunner(engine sorter.Engine, fs fsutil.FileSystem) *Runner {
	return &Runner{
		FS:     fs,
		Engine: engine,
		OpenVolume: func(string) (rawstore.Volume, error) {
			return testVolume(), nil
		},
	}
}

func TestProcessFileEndToEnd(t *testing.T) {
	engine := &sorter.MockEngine{Fixture: testFixture()}
	r := newTestRunner(engine, fsutil.OSFileSystem{})
	out := t.TempDir()

	// Empty well selection exercises auto-detection against the volume.
	err := r.ProcessFile(context.Background(), "plate.h5", out, testConfig(), Options{})
	require.NoError(t, err)

	wellDir := filepath.Join(out, "well000")
	for _, rel := range []string{
		"preprocessed/traces.bin",
		"preprocessed/ks4_probe.json",
		"preprocessed/channel_xy.npy",
		"preprocessed/meta.json",
		"ks4/" + sorter.SpikeTimesFile,
		"ks4/" + sorter.SpikeClustersFile,
		"qc/" + qc.SummaryFile,
		"qc/" + qc.RasterFile,
		"qc/" + qc.ReportFile,
	} {
		_, err := os.Stat(filepath.Join(wellDir, rel))
		assert.NoError(t, err, "expected output %s", rel)
	}

	// 40 frames x 2 channels x int16.
	info, err := os.Stat(filepath.Join(wellDir, "preprocessed", "traces.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(40*2*2), info.Size())

	calls := engine.Calls()
	require.Len(t, calls, 1)
	s := calls[0]
	assert.Equal(t, filepath.Join(wellDir, "preprocessed", "traces.bin"), s.Filename)
	assert.Equal(t, filepath.Join(wellDir, "preprocessed", "ks4_probe.json"), s.ProbePath)
	assert.Equal(t, filepath.Join(wellDir, "ks4"), s.ResultsDir)
	assert.Equal(t, 1000.0, s.Fs)
	assert.Equal(t, 2, s.NChanBin)
	assert.Equal(t, 60000, s.BatchSize)
	assert.Equal(t, 1.0, s.HighpassCutoff)

	data, err := os.ReadFile(filepath.Join(wellDir, "preprocessed", "meta.json"))
	require.NoError(t, err)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "plate.h5", meta["h5"])
	assert.Equal(t, "well000", meta["stream"])
	assert.Nil(t, meta["dur_s"], "dur_s must be null for a full-recording run")
	assert.Equal(t, 2.0, meta["n_chan"])
}

func TestZeroDurationExportsFullRecording(t *testing.T) {
	engine := &sorter.MockEngine{Fixture: testFixture()}
	r := newTestRunner(engine, fsutil.OSFileSystem{})
	out := t.TempDir()

	// Zero duration means the whole recording; the start offset does not
	// narrow it.
	cfg := testConfig()
	cfg.StartS = 0.01
	cfg.DurS = 0

	opts := Options{Wells: []int{0}}
	require.NoError(t, r.ProcessFile(context.Background(), "plate.h5", out, cfg, opts))

	info, err := os.Stat(filepath.Join(out, "well000", "preprocessed", "traces.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(40*2*2), info.Size())
}

func TestWellStateStrings(t *testing.T) {
	want := map[WellState]string{
		StatePending: "pending",
		StateSkipped: "skipped",
		StateRunning: "running",
		StateDone:    "done",
		StateFailed:  "failed",
	}
	for state, name := range want {
		assert.Equal(t, name, state.String())
	}
	assert.Equal(t, "unknown", WellState(99).String())
}

func TestProcessFileOnlyWellOverride(t *testing.T) {
	engine := &sorter.MockEngine{Fixture: testFixture()}
	r := newTestRunner(engine, fsutil.OSFileSystem{})
	out := t.TempDir()

	well := 0
	opts := Options{Wells: []int{1, 2, 3}, OnlyWell: &well}
	require.NoError(t, r.ProcessFile(context.Background(), "plate.h5", out, testConfig(), opts))

	calls := engine.Calls()
	require.Len(t, calls, 1, "only-well overrides the explicit well list")
	assert.Contains(t, calls[0].ResultsDir, "well000")
}

func TestSkipExistingPerformsZeroWrites(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	ksDir := filepath.Join("out", "well000", "ks4")
	require.NoError(t, memfs.WriteFile(filepath.Join(ksDir, sorter.SpikeTimesFile), []byte{1}, 0644))
	require.NoError(t, memfs.WriteFile(filepath.Join(ksDir, sorter.SpikeClustersFile), []byte{1}, 0644))
	before := memfs.WriteCount()

	engine := &sorter.MockEngine{}
	r := newTestRunner(engine, memfs)

	opts := Options{Wells: []int{0}, SkipExisting: true}
	require.NoError(t, r.ProcessFile(context.Background(), "plate.h5", "out", testConfig(), opts))

	assert.Equal(t, before, memfs.WriteCount(), "a skipped well must write nothing")
	assert.Empty(t, engine.Calls())
}

func TestDryRunMutatesNothing(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	engine := &sorter.MockEngine{}
	r := newTestRunner(engine, memfs)

	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()
	r.Ledger = ledger

	opts := Options{Wells: []int{0, 1}, DryRun: true}
	require.NoError(t, r.ProcessFile(context.Background(), "plate.h5", "out", testConfig(), opts))

	assert.Zero(t, memfs.WriteCount())
	assert.Empty(t, memfs.Files())
	assert.Empty(t, engine.Calls())

	history, err := ledger.History("plate.h5")
	require.NoError(t, err)
	assert.Empty(t, history, "dry-run must not touch the ledger")
}

func TestLedgerTransitions(t *testing.T) {
	engine := &sorter.MockEngine{Fixture: testFixture()}
	r := newTestRunner(engine, fsutil.OSFileSystem{})

	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()
	r.Ledger = ledger

	out := t.TempDir()
	opts := Options{Wells: []int{0}}
	require.NoError(t, r.ProcessFile(context.Background(), "plate.h5", out, testConfig(), opts))

	history, err := ledger.History("plate.h5")
	require.NoError(t, err)
	require.Len(t, history, 3)
	states := []string{history[0].State, history[1].State, history[2].State}
	assert.Equal(t, []string{"pending", "running", "done"}, states)
	for _, tr := range history {
		assert.Equal(t, history[0].RunID, tr.RunID, "one run id per well run")
		assert.Equal(t, "well000", tr.Stream)
	}
}

func TestEngineFailureRecordedAndPropagated(t *testing.T) {
	engine := &sorter.MockEngine{Err: fmt.Errorf("engine exploded")}
	r := newTestRunner(engine, fsutil.OSFileSystem{})

	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()
	r.Ledger = ledger

	opts := Options{Wells: []int{0}}
	err = r.ProcessFile(context.Background(), "plate.h5", t.TempDir(), testConfig(), opts)
	require.ErrorContains(t, err, "engine exploded")

	history, lerr := ledger.History("plate.h5")
	require.NoError(t, lerr)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, "failed", last.State)
	assert.Contains(t, last.Detail, "engine exploded")
}

func TestNilLedgerIsSafe(t *testing.T) {
	var l *Ledger
	assert.NoError(t, l.Record("id", "h5", "well000", StateRunning, ""))
	assert.NoError(t, l.Close())
	history, err := l.History("h5")
	assert.NoError(t, err)
	assert.Nil(t, history)
}

func TestProcessTreeMirrorsLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "batch1"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "batch2"), 0755))
	for _, rel := range []string{"batch1/a.h5", "batch2/b.h5"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte("x"), 0644))
	}

	var opened []string
	engine := &sorter.MockEngine{Fixture: testFixture()}
	r := newTestRunner(engine, fsutil.OSFileSystem{})
	r.OpenVolume = func(path string) (rawstore.Volume, error) {
		opened = append(opened, path)
		return testVolume(), nil
	}

	out := t.TempDir()
	opts := Options{Wells: []int{0}}
	require.NoError(t, r.ProcessTree(context.Background(), root, out, testConfig(), opts))

	require.Len(t, opened, 2)
	assert.Equal(t, filepath.Join(root, "batch1", "a.h5"), opened[0])
	assert.Equal(t, filepath.Join(root, "batch2", "b.h5"), opened[1])

	for _, rel := range []string{
		"batch1/well000/preprocessed/traces.bin",
		"batch2/well000/preprocessed/traces.bin",
	} {
		_, err := os.Stat(filepath.Join(out, rel))
		assert.NoError(t, err, "expected mirrored output %s", rel)
	}
}

func TestProcessFlatUsesFileStems(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "nested", "deep.h5"), []byte("x"), 0644))
	for _, name := range []string{"b.raw.h5", "a.raw.h5", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))
	}

	var opened []string
	engine := &sorter.MockEngine{Fixture: testFixture()}
	r := newTestRunner(engine, fsutil.OSFileSystem{})
	r.OpenVolume = func(path string) (rawstore.Volume, error) {
		opened = append(opened, path)
		return testVolume(), nil
	}

	out := t.TempDir()
	opts := Options{Wells: []int{0}}
	require.NoError(t, r.ProcessFlat(context.Background(), root, out, testConfig(), opts))

	require.Len(t, opened, 2, "flat mode must not recurse or pick up non-raw files")
	assert.Equal(t, filepath.Join(root, "a.raw.h5"), opened[0])
	assert.Equal(t, filepath.Join(root, "b.raw.h5"), opened[1])

	for _, rel := range []string{
		"a.raw/well000/preprocessed/traces.bin",
		"b.raw/well000/preprocessed/traces.bin",
	} {
		_, err := os.Stat(filepath.Join(out, rel))
		assert.NoError(t, err, "expected stem output %s", rel)
	}
}

func TestProcessTreeEmpty(t *testing.T) {
	r := newTestRunner(&sorter.MockEngine{}, fsutil.OSFileSystem{})
	err := r.ProcessTree(context.Background(), t.TempDir(), t.TempDir(), testConfig(), Options{})
	assert.NoError(t, err, "an empty tree is not an error")
}
