package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/mxwsort/internal/export"
	"github.com/banshee-data/mxwsort/internal/fsutil"
	"github.com/banshee-data/mxwsort/internal/monitoring"
	"github.com/banshee-data/mxwsort/internal/preprocess"
	"github.com/banshee-data/mxwsort/internal/qc"
	"github.com/banshee-data/mxwsort/internal/rawstore"
	"github.com/banshee-data/mxwsort/internal/sorter"
)

// Per-well output layout.
const (
	prepDirName = "preprocessed"
	ks4DirName  = "ks4"
	qcDirName   = "qc"

	binFile   = "traces.bin"
	probeFile = "ks4_probe.json"
	xyFile    = "channel_xy.npy"
	metaFile  = "meta.json"
)

// Config carries the processing parameters. Two runs with equal configs over
// equal inputs produce equal outputs.
type Config struct {
	StartS        float64
	DurS          float64 // 0 means full recording
	BpMinHz       float64
	BpMaxFracNyq  float64
	KS4BatchSize  int
	KS4HighpassHz float64
}

// DefaultConfig returns the stock processing parameters. The engine highpass
// is left at 1 Hz since the export is already band-restricted.
func DefaultConfig() Config {
	return Config{
		DurS:          30,
		BpMinHz:       300,
		BpMaxFracNyq:  0.9,
		KS4BatchSize:  60000,
		KS4HighpassHz: 1,
	}
}

// Options carries the execution parameters, kept apart from Config so skip
// and dry-run policy can vary without touching reproducibility.
type Options struct {
	Wells        []int // explicit well indices; empty means auto-detect
	OnlyWell     *int  // overrides Wells when set
	SkipExisting bool
	DryRun       bool
}

// Runner drives the pipeline. The zero value is not usable; NewRunner wires
// the production filesystem and volume opener.
type Runner struct {
	FS     fsutil.FileSystem
	Engine sorter.Engine
	Ledger *Ledger

	// OpenVolume opens the raw plate file. Tests substitute an in-memory
	// volume here.
	OpenVolume func(path string) (rawstore.Volume, error)
}

func NewRunner(engine sorter.Engine) *Runner {
	return &Runner{
		FS:     fsutil.OSFileSystem{},
		Engine: engine,
		OpenVolume: func(path string) (rawstore.Volume, error) {
			return rawstore.OpenHDF5Volume(path)
		},
	}
}

// ProcessFile processes the selected wells of one plate file sequentially.
// The first well error aborts the remaining wells and propagates.
func (r *Runner) ProcessFile(ctx context.Context, h5Path, outRoot string, cfg Config, opts Options) error {
	vol, err := r.OpenVolume(h5Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", h5Path, err)
	}
	defer vol.Close()

	wells := opts.Wells
	switch {
	case opts.OnlyWell != nil:
		wells = []int{*opts.OnlyWell}
	case len(wells) == 0:
		det := rawstore.DetectWells(vol)
		wells = det.Wells
		if det.Fallback {
			monitoring.Logf("%s: well detection fell back to default wells %v", h5Path, wells)
		} else {
			monitoring.Logf("%s: auto-detected %d wells: %v", h5Path, len(wells), wells)
		}
	}

	for _, well := range wells {
		if err := r.processWell(ctx, vol, h5Path, outRoot, cfg, opts, well); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) processWell(ctx context.Context, vol rawstore.Volume, h5Path, outRoot string, cfg Config, opts Options, well int) error {
	stream := rawstore.StreamName(well)
	wellDir := filepath.Join(outRoot, stream)
	prepDir := filepath.Join(wellDir, prepDirName)
	ksDir := filepath.Join(wellDir, ks4DirName)
	qcDir := filepath.Join(wellDir, qcDirName)

	binPath := filepath.Join(prepDir, binFile)
	probePath := filepath.Join(prepDir, probeFile)
	xyPath := filepath.Join(prepDir, xyFile)
	metaPath := filepath.Join(prepDir, metaFile)

	runID := uuid.NewString()
	// Dry-run performs zero mutations, the ledger included.
	record := func(state WellState, detail string) error {
		if opts.DryRun {
			return nil
		}
		return r.Ledger.Record(runID, h5Path, stream, state, detail)
	}

	if err := record(StatePending, ""); err != nil {
		return err
	}

	if opts.SkipExisting && sorter.Done(r.FS, ksDir) {
		monitoring.Logf("[SKIP] %s %s (ks4 outputs exist)", h5Path, stream)
		return record(StateSkipped, "ks4 outputs exist")
	}

	if opts.DryRun {
		dur := "unknown"
		if d, err := rawstore.ProbeDuration(vol, h5Path, stream); err == nil {
			dur = fmt.Sprintf("%.1fs", d)
		}
		monitoring.Logf("[DRY-RUN] %s %s (duration %s) -> %s", h5Path, stream, dur, wellDir)
		monitoring.Logf("  would write: %s", binPath)
		monitoring.Logf("  would write: %s", probePath)
		monitoring.Logf("  would run ks4 into: %s", ksDir)
		monitoring.Logf("  would write qc into: %s", qcDir)
		return nil
	}

	monitoring.Logf("[RUN] %s %s -> %s", h5Path, stream, wellDir)
	if err := record(StateRunning, ""); err != nil {
		return err
	}
	fail := func(cause error) error {
		if err := record(StateFailed, cause.Error()); err != nil {
			monitoring.Logf("%v", err)
		}
		return cause
	}

	for _, dir := range []string{prepDir, ksDir, qcDir} {
		if err := r.FS.MkdirAll(dir, 0755); err != nil {
			return fail(fmt.Errorf("create %s: %w", dir, err))
		}
	}

	store, err := rawstore.NewStore(vol, h5Path, stream)
	if err != nil {
		return fail(err)
	}

	// Zero duration means the full recording; WindowSeconds passes through
	// and the start offset is not applied.
	rec := preprocess.New(store).UnsignedToSigned()
	rec = rec.WindowSeconds(cfg.StartS, cfg.DurS)
	rec, err = rec.Band(cfg.BpMinHz, cfg.BpMaxFracNyq)
	if err != nil {
		return fail(err)
	}

	fsHz := rec.SampleRate()
	geom := rec.Geometry()

	if err := export.WriteBinary(rec, r.FS, binPath); err != nil {
		return fail(err)
	}
	if err := export.WriteChannelXY(geom, r.FS, xyPath); err != nil {
		return fail(err)
	}
	if err := export.WriteProbeJSON(geom, r.FS, probePath); err != nil {
		return fail(err)
	}

	var durPtr *float64
	if cfg.DurS > 0 {
		d := cfg.DurS
		durPtr = &d
	}
	meta := export.RunMeta{
		H5:           h5Path,
		Stream:       stream,
		FsHz:         fsHz,
		StartS:       cfg.StartS,
		DurS:         durPtr,
		BpMinHz:      cfg.BpMinHz,
		BpMaxFracNyq: cfg.BpMaxFracNyq,
		NChan:        len(geom),
	}
	if err := export.WriteMetaJSON(meta, r.FS, metaPath); err != nil {
		return fail(err)
	}

	err = r.Engine.Run(ctx, sorter.Settings{
		Filename:       binPath,
		ProbePath:      probePath,
		ResultsDir:     ksDir,
		Fs:             fsHz,
		NChanBin:       len(geom),
		BatchSize:      cfg.KS4BatchSize,
		HighpassCutoff: cfg.KS4HighpassHz,
	})
	if err != nil {
		return fail(err)
	}

	if err := qc.WriteQC(ksDir, qcDir, fsHz, cfg.DurS); err != nil {
		return fail(err)
	}
	return record(StateDone, "")
}
