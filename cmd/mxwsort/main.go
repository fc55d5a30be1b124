package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/mxwsort/internal/pipeline"
	"github.com/banshee-data/mxwsort/internal/sorter"
	"github.com/banshee-data/mxwsort/internal/version"
)

var (
	out          = flag.String("out", "", "Output root folder (required)")
	startS       = flag.Float64("start-s", 0, "Start time in seconds")
	durS         = flag.Float64("dur-s", 30, "Seconds to process; 0 means the full recording")
	wells        = flag.String("wells", "auto", "Wells to process ('0-5', '0,2,4', or 'auto' to detect)")
	onlyWell     = flag.Int("only-well", -1, "Process exactly one well index")
	bpMin        = flag.Float64("bp-min", 300, "Bandpass min frequency (Hz)")
	bpMaxFracNyq = flag.Float64("bp-max-frac-nyq", 0.9, "Bandpass max as a fraction of Nyquist")
	ks4Highpass  = flag.Float64("ks4-highpass-cutoff", 1, "Engine highpass cutoff in Hz (1 disables; export is already band-restricted)")
	ks4BatchSize = flag.Int("ks4-batch-size", 60000, "Engine batch size")
	ks4Cmd       = flag.String("ks4-cmd", sorter.DefaultCommand, "Spike-sort engine command")
	skipExisting = flag.Bool("skip-existing", true, "Skip wells whose engine outputs already exist")
	dryRun       = flag.Bool("dry-run", false, "Print intended actions without writing anything")
	flat         = flag.Bool("flat", false, "Treat an input directory as flat: no recursion, output subdir per file stem")
	ledgerPath   = flag.String("ledger", "", "Optional SQLite run-ledger path")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("mxwsort %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if flag.NArg() != 1 || *out == "" {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <data.raw.h5 | directory>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	input := flag.Arg(0)

	wellList, err := parseWells(*wells)
	if err != nil {
		log.Fatalf("invalid -wells %q: %v", *wells, err)
	}

	cfg := pipeline.Config{
		StartS:        *startS,
		DurS:          *durS,
		BpMinHz:       *bpMin,
		BpMaxFracNyq:  *bpMaxFracNyq,
		KS4BatchSize:  *ks4BatchSize,
		KS4HighpassHz: *ks4Highpass,
	}
	opts := pipeline.Options{
		Wells:        wellList,
		SkipExisting: *skipExisting,
		DryRun:       *dryRun,
	}
	if *onlyWell >= 0 {
		opts.OnlyWell = onlyWell
	}

	runner := pipeline.NewRunner(sorter.NewCommandEngine(*ks4Cmd))
	if *ledgerPath != "" {
		ledger, err := pipeline.OpenLedger(*ledgerPath)
		if err != nil {
			log.Fatalf("open ledger: %v", err)
		}
		defer ledger.Close()
		runner.Ledger = ledger
	}

	ctx := context.Background()
	info, err := os.Stat(input)
	if err != nil {
		log.Fatalf("stat %s: %v", input, err)
	}
	switch {
	case info.IsDir() && *flat:
		err = runner.ProcessFlat(ctx, input, *out, cfg, opts)
	case info.IsDir():
		err = runner.ProcessTree(ctx, input, *out, cfg, opts)
	default:
		err = runner.ProcessFile(ctx, input, *out, cfg, opts)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
