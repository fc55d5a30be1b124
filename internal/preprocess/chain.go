// Package preprocess builds lazy transform chains over raw recordings.
// Stages are ordered descriptors; sample data is only materialized when a
// block is read, never when the chain is assembled.
package preprocess

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mxwsort/internal/rawstore"
)

// Stage is one named lazy transform. The apply function mutates a
// materialized frames-by-channels block in place.
type Stage struct {
	Name  string
	apply func(block *mat.Dense)
}

// Recording is a lazy view over a raw store: a frame range plus an ordered
// stage list. Narrowing the window or appending stages copies no sample
// data.
type Recording struct {
	store  *rawstore.Store
	start  int // absolute start frame in the store
	end    int // absolute end frame (exclusive)
	stages []Stage
}

// New wraps a store in a full-range view with no stages.
func New(store *rawstore.Store) *Recording {
	return &Recording{store: store, end: store.NumFrames()}
}

// NumFrames returns the view's frame count.
func (r *Recording) NumFrames() int { return r.end - r.start }

// SampleRate returns the sampling rate in Hz.
func (r *Recording) SampleRate() float64 { return r.store.SampleRate() }

// NumChannels returns the channel count.
func (r *Recording) NumChannels() int { return r.store.NumChannels() }

// Geometry returns the channel positions.
func (r *Recording) Geometry() []rawstore.XY { return r.store.Geometry() }

// StageNames lists the appended stages in order.
func (r *Recording) StageNames() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name
	}
	return names
}

// UnsignedToSigned appends a stage reinterpreting unsigned samples as signed
// by subtracting the representable range's midpoint. For stores whose raw
// dtype is already signed the stage is a no-op.
func (r *Recording) UnsignedToSigned() *Recording {
	mid := r.store.RawKind().Midpoint()
	r.stages = append(r.stages, Stage{
		Name: "unsigned_to_signed",
		apply: func(block *mat.Dense) {
			if mid == 0 {
				return
			}
			rows, cols := block.Dims()
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					block.Set(i, j, block.At(i, j)-mid)
				}
			}
		},
	})
	return r
}

// WindowSeconds narrows the view to [round(startS*fs), round((startS+durS)*fs)),
// clamped to the recording's bounds. durS <= 0 is a pass-through meaning the
// full remaining range.
func (r *Recording) WindowSeconds(startS, durS float64) *Recording {
	if durS <= 0 {
		return r
	}
	fs := r.store.SampleRate()
	startF := int(math.Round(startS * fs))
	endF := int(math.Round((startS + durS) * fs))

	newStart := r.start + startF
	newEnd := r.start + endF
	if newStart < r.start {
		newStart = r.start
	}
	if newEnd > r.end {
		newEnd = r.end
	}
	if newStart > newEnd {
		newStart = newEnd
	}
	r.start, r.end = newStart, newEnd
	return r
}

// ReadBlock materializes frames [start, end) of the view as a
// frames-by-channels matrix with all stages applied in order.
func (r *Recording) ReadBlock(start, end int) (*mat.Dense, error) {
	if start < 0 || end < start || end > r.NumFrames() {
		return nil, fmt.Errorf("block [%d,%d) out of view range [0,%d)", start, end, r.NumFrames())
	}
	block, err := r.store.ReadWindow(r.start+start, r.start+end, nil)
	if err != nil {
		return nil, err
	}
	for _, s := range r.stages {
		s.apply(block)
	}
	return block, nil
}
