package qc

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Plot artifact names.
const (
	RasterFile    = "raster.png"
	PositionsFile = "spike_positions.png"
	DriftFile     = "drift_scatter.png"
)

// rasterSelection is the deterministic unit/spike subset drawn in the
// raster plot.
type rasterSelection struct {
	units []int64   // chosen unit ids, ascending
	xs    []float64 // spike times (s)
	ys    []float64 // row index of the spike's unit within units
}

// selectRaster picks at most MaxRasterUnits units and MaxSpikesPerUnit
// spikes per unit from the sampler's fixed stream.
func selectRaster(out *sortOutput, s *sampler) rasterSelection {
	ids := unitIDs(out.clusters)
	chosenIdx := s.pick(len(ids), MaxRasterUnits)
	sel := rasterSelection{units: make([]int64, len(chosenIdx))}
	for i, idx := range chosenIdx {
		sel.units[i] = ids[idx]
	}

	row := make(map[int64]int, len(sel.units))
	for i, u := range sel.units {
		row[u] = i
	}
	for _, u := range sel.units {
		var times []float64
		for i, c := range out.clusters {
			if c == u {
				times = append(times, out.timesS[i])
			}
		}
		for _, keep := range s.pick(len(times), MaxSpikesPerUnit) {
			sel.xs = append(sel.xs, times[keep])
			sel.ys = append(sel.ys, float64(row[u]))
		}
	}
	return sel
}

// writePlots renders the raster and, when positions are usable, the
// positions and drift scatters. One sampler drives every selection so the
// artifact set is reproducible as a whole.
func writePlots(out *sortOutput, qcDir string) error {
	s := newSampler()

	sel := selectRaster(out, s)
	if err := scatterPlot(scatterSpec{
		title:  "Raster (subsampled)",
		xLabel: "Time (s)",
		yLabel: "Unit (subset)",
	}, sel.xs, sel.ys, nil, filepath.Join(qcDir, RasterFile)); err != nil {
		return err
	}

	// Positions and drift are skipped entirely without a usable
	// positions array.
	if !out.positionsUsable() {
		return nil
	}

	cols := out.posShape[1]
	keep := s.pick(len(out.timesS), MaxScatterPoints)
	posX := make([]float64, len(keep))
	posY := make([]float64, len(keep))
	driftX := make([]float64, len(keep))
	var sizes []float64
	if len(out.amps) == len(out.timesS) {
		sizes = make([]float64, len(keep))
	}
	for i, idx := range keep {
		posX[i] = out.pos[idx*cols+0]
		posY[i] = out.pos[idx*cols+1]
		driftX[i] = out.timesS[idx]
		if sizes != nil {
			sizes[i] = out.amps[idx]
		}
	}

	if err := scatterPlot(scatterSpec{
		title:  "Spike positions (subsampled)",
		xLabel: "x (um)",
		yLabel: "y (um)",
	}, posX, posY, nil, filepath.Join(qcDir, PositionsFile)); err != nil {
		return err
	}
	return scatterPlot(scatterSpec{
		title:  "Drift scatter (subsampled)",
		xLabel: "Time (s)",
		yLabel: "y (um)",
	}, driftX, posY, sizes, filepath.Join(qcDir, DriftFile))
}

type scatterSpec struct {
	title  string
	xLabel string
	yLabel string
}

// scatterPlot renders one scatter. With sizes present (same length as the
// points) marker radii scale gently with the value range; otherwise every
// marker uses a fixed small radius.
func scatterPlot(spec scatterSpec, xs, ys, sizes []float64, path string) error {
	p := plot.New()
	p.Title.Text = spec.title
	p.X.Label.Text = spec.xLabel
	p.Y.Label.Text = spec.yLabel

	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("build scatter %s: %w", path, err)
	}
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(1)

	if len(sizes) == len(xs) && len(sizes) > 0 {
		minA, maxA := sizes[0], sizes[0]
		for _, a := range sizes {
			if a < minA {
				minA = a
			}
			if a > maxA {
				maxA = a
			}
		}
		span := maxA - minA
		base := sc.GlyphStyle
		sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			g := base
			g.Radius = vg.Points(1 + 3*(sizes[i]-minA)/(span+1e-9))
			return g
		}
	}

	p.Add(sc)
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
