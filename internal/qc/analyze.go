// Package qc turns spike-sort engine output arrays into summary statistics
// and diagnostic visual artifacts.
package qc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/mxwsort/internal/sorter"
)

// SummaryFile is the QC summary written into the QC directory.
const SummaryFile = "qc_summary.json"

// maxSummaryUnits bounds the per-unit firing rates carried in the summary.
const maxSummaryUnits = 10

// MissingOutputError reports required spike-sort output arrays absent from
// an engine results directory.
type MissingOutputError struct {
	Dir     string
	Missing []string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("missing spike-sort output in %s: %s", e.Dir, strings.Join(e.Missing, ", "))
}

// UnitRate is one unit's firing rate.
type UnitRate struct {
	Unit   int64
	RateHz float64
}

// FiringRates marshals as a JSON object keyed by unit id, preserving slice
// order. Ascending unit-id order is part of the summary contract, so plain
// map marshalling (which sorts keys lexically) is not usable here.
type FiringRates []UnitRate

// MarshalJSON emits the rates as an object in slice order.
func (r FiringRates) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, ur := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		rate, err := json.Marshal(ur.RateHz)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%q:%s", strconv.FormatInt(ur.Unit, 10), rate)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Summary is the QC summary record.
type Summary struct {
	NUnits            int         `json:"n_units"`
	NSpikes           int         `json:"n_spikes"`
	DurationS         float64     `json:"duration_s"`
	FsHz              float64     `json:"fs_hz"`
	HasAmplitudes     bool        `json:"has_amplitudes"`
	HasSpikePositions bool        `json:"has_spike_positions"`
	FirstRates        FiringRates `json:"unit_firing_rate_hz_first10"`
}

// sortOutput holds the loaded engine arrays, flattened.
type sortOutput struct {
	timesS   []float64 // spike times in seconds
	clusters []int64   // unit id per spike
	amps     []float64 // nil when absent
	pos      []float64 // nil when absent; row-major posShape
	posShape []int
}

// positionsUsable reports whether the positions array is present with the
// expected (N, >=2) shape.
func (o *sortOutput) positionsUsable() bool {
	return o.pos != nil && len(o.posShape) == 2 && o.posShape[1] >= 2 && o.posShape[0] == len(o.timesS)
}

// loadOutput reads the engine arrays from ksDir. The two required arrays
// must both exist; optional arrays are loaded when present.
func loadOutput(ksDir string, fsHz float64) (*sortOutput, error) {
	var missing []string
	for _, name := range []string{sorter.SpikeTimesFile, sorter.SpikeClustersFile} {
		if _, err := os.Stat(filepath.Join(ksDir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingOutputError{Dir: ksDir, Missing: missing}
	}

	times, _, err := loadArray(filepath.Join(ksDir, sorter.SpikeTimesFile))
	if err != nil {
		return nil, err
	}
	clustersF, _, err := loadArray(filepath.Join(ksDir, sorter.SpikeClustersFile))
	if err != nil {
		return nil, err
	}
	if len(times) != len(clustersF) {
		return nil, fmt.Errorf("%s: spike times (%d) and clusters (%d) disagree in length", ksDir, len(times), len(clustersF))
	}

	out := &sortOutput{
		timesS:   make([]float64, len(times)),
		clusters: make([]int64, len(clustersF)),
	}
	for i, v := range times {
		out.timesS[i] = v / fsHz
	}
	for i, v := range clustersF {
		out.clusters[i] = int64(v)
	}

	if _, err := os.Stat(filepath.Join(ksDir, sorter.AmplitudesFile)); err == nil {
		amps, _, err := loadArray(filepath.Join(ksDir, sorter.AmplitudesFile))
		if err != nil {
			return nil, err
		}
		out.amps = amps
	}
	if _, err := os.Stat(filepath.Join(ksDir, sorter.SpikePositionsFile)); err == nil {
		pos, shape, err := loadArray(filepath.Join(ksDir, sorter.SpikePositionsFile))
		if err != nil {
			return nil, err
		}
		out.pos = pos
		out.posShape = shape
	}
	return out, nil
}

// effectiveDuration resolves the duration used for rate computation: the
// caller-provided value when positive, else the maximum observed spike time,
// else zero.
func effectiveDuration(timesS []float64, durS float64) float64 {
	if durS > 0 {
		return durS
	}
	var maxT float64
	for _, t := range timesS {
		if t > maxT {
			maxT = t
		}
	}
	return maxT
}

// unitIDs returns the distinct unit ids in ascending order.
func unitIDs(clusters []int64) []int64 {
	seen := make(map[int64]bool)
	for _, u := range clusters {
		seen[u] = true
	}
	ids := make([]int64, 0, len(seen))
	for u := range seen {
		ids = append(ids, u)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// summarize computes the summary record for loaded engine output.
func summarize(out *sortOutput, fsHz, durS float64) *Summary {
	dur := effectiveDuration(out.timesS, durS)
	ids := unitIDs(out.clusters)

	counts := make(map[int64]int, len(ids))
	for _, u := range out.clusters {
		counts[u]++
	}

	first := len(ids)
	if first > maxSummaryUnits {
		first = maxSummaryUnits
	}
	rates := make(FiringRates, 0, first)
	for _, u := range ids[:first] {
		rate := 0.0
		if dur > 0 {
			rate = float64(counts[u]) / dur
		}
		rates = append(rates, UnitRate{Unit: u, RateHz: rate})
	}

	return &Summary{
		NUnits:            len(ids),
		NSpikes:           len(out.timesS),
		DurationS:         dur,
		FsHz:              fsHz,
		HasAmplitudes:     out.amps != nil,
		HasSpikePositions: out.pos != nil,
		FirstRates:        rates,
	}
}

// Analyze loads the engine output from ksDir and computes a summary. durS
// <= 0 means derive the duration from the data.
func Analyze(ksDir string, fsHz, durS float64) (*Summary, error) {
	out, err := loadOutput(ksDir, fsHz)
	if err != nil {
		return nil, err
	}
	return summarize(out, fsHz, durS), nil
}

// WriteQC analyzes the engine output and writes the summary, the diagnostic
// plots, and the firing-rate report into qcDir.
func WriteQC(ksDir, qcDir string, fsHz, durS float64) error {
	out, err := loadOutput(ksDir, fsHz)
	if err != nil {
		return err
	}
	summary := summarize(out, fsHz, durS)

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal qc summary: %w", err)
	}
	sumPath := filepath.Join(qcDir, SummaryFile)
	if err := os.WriteFile(sumPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", sumPath, err)
	}

	if err := writePlots(out, qcDir); err != nil {
		return err
	}
	return writeFiringRateReport(summary.FirstRates, filepath.Join(qcDir, ReportFile))
}
