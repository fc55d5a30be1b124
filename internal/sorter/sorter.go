// Package sorter is the boundary to the external spike-sorting engine.
// The engine runs out of process and is fully specified by a settings map;
// its completion is inferred solely from the presence of its two required
// output arrays.
package sorter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/banshee-data/mxwsort/internal/fsutil"
)

// Output array files the engine is expected to produce.
const (
	SpikeTimesFile     = "spike_times.npy"
	SpikeClustersFile  = "spike_clusters.npy"
	AmplitudesFile     = "amplitudes.npy"
	SpikePositionsFile = "spike_positions.npy"
)

// settingsFile is the name of the settings map written into the results dir.
const settingsFile = "ks4_settings.json"

// DefaultCommand is the engine runner looked up on PATH when none is
// configured.
const DefaultCommand = "kilosort4"

// Settings fully specifies one engine invocation. The JSON keys follow the
// engine's settings map.
type Settings struct {
	Filename       string  `json:"filename"`
	ProbePath      string  `json:"probe_path"`
	ResultsDir     string  `json:"results_dir"`
	Fs             float64 `json:"fs"`
	NChanBin       int     `json:"n_chan_bin"`
	BatchSize      int     `json:"batch_size"`
	HighpassCutoff float64 `json:"highpass_cutoff"`
}

// Engine runs the spike-sort engine for one exported well. Run blocks until
// the engine exits; there is no timeout beyond ctx.
type Engine interface {
	Run(ctx context.Context, s Settings) error
}

// CommandEngine invokes an external engine runner. The settings map is
// written into the results directory and passed by path.
type CommandEngine struct {
	Command string
	Args    []string
}

// NewCommandEngine creates an engine invoking the given command, or
// DefaultCommand if empty.
func NewCommandEngine(command string) *CommandEngine {
	if command == "" {
		command = DefaultCommand
	}
	return &CommandEngine{Command: command}
}

// Run writes the settings map and execs the engine, blocking until it exits.
func (e *CommandEngine) Run(ctx context.Context, s Settings) error {
	path, err := WriteSettings(s)
	if err != nil {
		return err
	}
	args := append(append([]string(nil), e.Args...), "--settings", path)
	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("spike sort %s: %w", s.Filename, err)
	}
	return nil
}

// WriteSettings writes the settings map into the results directory and
// returns its path.
func WriteSettings(s Settings) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal engine settings: %w", err)
	}
	path := filepath.Join(s.ResultsDir, settingsFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Done reports whether a results directory holds both completion markers.
// No content validation is performed.
func Done(fs fsutil.FileSystem, dir string) bool {
	return fs.Exists(filepath.Join(dir, SpikeTimesFile)) &&
		fs.Exists(filepath.Join(dir, SpikeClustersFile))
}
