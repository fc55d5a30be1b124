package rawstore

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMapping is a 3-channel mapping with deliberately non-monotonic channel
// ids so id-based lookups are distinguishable from positional ones.
var testMapping = []ChannelMapping{
	{Channel: 7, Electrode: 100, X: 10, Y: 20},
	{Channel: 3, Electrode: 101, X: 30, Y: 40},
	{Channel: 12, Electrode: 102, X: 50, Y: 60},
}

// logical 3-channel, 4-sample matrix used in both layouts
var testFrames = [][]float64{
	{100, 200, 300}, // frame 0, per channel
	{101, 201, 301},
	{102, 202, 302},
	{103, 203, 303},
}

func planar2D(frames [][]float64) [][]float64 {
	nch := len(frames[0])
	out := make([][]float64, nch)
	for ch := 0; ch < nch; ch++ {
		out[ch] = make([]float64, len(frames))
		for f := range frames {
			out[ch][f] = frames[f][ch]
		}
	}
	return out
}

func interleaved1D(frames [][]float64) []float64 {
	var out []float64
	for _, fr := range frames {
		out = append(out, fr...)
	}
	return out
}

func newTestVolume(t *testing.T, nested bool, oneDim bool) *MemVolume {
	t.Helper()
	vol := NewMemVolume()
	spec := WellSpec{
		Stream:  "well000",
		Nested:  nested,
		FS:      20000,
		Mapping: testMapping,
	}
	if oneDim {
		spec.Raw1D = interleaved1D(testFrames)
	} else {
		spec.Raw2D = planar2D(testFrames)
	}
	vol.AddWell(spec)
	return vol
}

func TestLayoutResolutionNestedAndDirect(t *testing.T) {
	for _, nested := range []bool{true, false} {
		vol := newTestVolume(t, nested, false)
		s, err := NewStore(vol, "plate.h5", "well000")
		require.NoError(t, err, "nested=%v", nested)
		assert.Equal(t, Planar2D, s.Layout())
		assert.Equal(t, 3, s.NumChannels())
		assert.Equal(t, 4, s.NumFrames())
		assert.Equal(t, 20000.0, s.SampleRate())
	}
}

func TestLayoutResolutionFailure(t *testing.T) {
	vol := NewMemVolume()
	vol.AddGroup("wells/well000/misc") // neither rec* nor settings

	_, err := NewStore(vol, "plate.h5", "well000")
	var layoutErr *LayoutError
	require.ErrorAs(t, err, &layoutErr)
	assert.Equal(t, "well000", layoutErr.Stream)
	assert.Equal(t, "plate.h5", layoutErr.Path)

	// missing well group entirely
	_, err = NewStore(vol, "plate.h5", "well001")
	require.ErrorAs(t, err, &layoutErr)
}

func TestReadWindowLayoutsAgree(t *testing.T) {
	vol2d := newTestVolume(t, true, false)
	vol1d := newTestVolume(t, true, true)

	s2d, err := NewStore(vol2d, "plate.h5", "well000")
	require.NoError(t, err)
	s1d, err := NewStore(vol1d, "plate.h5", "well000")
	require.NoError(t, err)

	require.Equal(t, Interleaved1D, s1d.Layout())

	windows := [][2]int{{0, 4}, {1, 3}, {0, 1}, {2, 4}, {3, 3}}
	for _, w := range windows {
		m2, err := s2d.ReadWindow(w[0], w[1], nil)
		require.NoError(t, err)
		m1, err := s1d.ReadWindow(w[0], w[1], nil)
		require.NoError(t, err)

		r2, c2 := m2.Dims()
		r1, c1 := m1.Dims()
		require.Equal(t, r2, r1, "window %v", w)
		require.Equal(t, c2, c1, "window %v", w)
		for f := 0; f < r2; f++ {
			for ch := 0; ch < c2; ch++ {
				assert.Equal(t, m2.At(f, ch), m1.At(f, ch), "window %v frame %d ch %d", w, f, ch)
				assert.Equal(t, testFrames[w[0]+f][ch], m2.At(f, ch))
			}
		}
	}
}

func TestReadWindowChannelSubset(t *testing.T) {
	vol := newTestVolume(t, true, false)
	s, err := NewStore(vol, "plate.h5", "well000")
	require.NoError(t, err)

	m, err := s.ReadWindow(1, 3, []int{2, 0})
	require.NoError(t, err)
	r, c := m.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)
	assert.Equal(t, 301.0, m.At(0, 0))
	assert.Equal(t, 101.0, m.At(0, 1))
	assert.Equal(t, 302.0, m.At(1, 0))
	assert.Equal(t, 102.0, m.At(1, 1))

	_, err = s.ReadWindow(1, 3, []int{5})
	assert.Error(t, err)
}

func TestReadWindowBounds(t *testing.T) {
	vol := newTestVolume(t, true, false)
	s, err := NewStore(vol, "plate.h5", "well000")
	require.NoError(t, err)

	_, err = s.ReadWindow(-1, 2, nil)
	assert.Error(t, err)
	_, err = s.ReadWindow(0, 5, nil)
	assert.Error(t, err)
	_, err = s.ReadWindow(3, 2, nil)
	assert.Error(t, err)
}

func TestGeometryFromMappingOrder(t *testing.T) {
	vol := newTestVolume(t, true, false)
	s, err := NewStore(vol, "plate.h5", "well000")
	require.NoError(t, err)

	want := []XY{{10, 20}, {30, 40}, {50, 60}}
	if diff := cmp.Diff(want, s.Geometry()); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestGeometryFollowsExplicitIDOrder(t *testing.T) {
	vol := NewMemVolume()
	vol.AddWell(WellSpec{
		Stream:  "well000",
		Nested:  true,
		FS:      20000,
		Mapping: testMapping,
		// deliberately not the table's row order
		ChannelIDs: []int64{12, 7, 3},
		Raw2D:      planar2D(testFrames),
	})

	s, err := NewStore(vol, "plate.h5", "well000")
	require.NoError(t, err)

	want := []XY{{50, 60}, {10, 20}, {30, 40}}
	if diff := cmp.Diff(want, s.Geometry()); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestGeometryChannelCountMismatch(t *testing.T) {
	// An explicit id list shorter than the raw array's channel axis would
	// make the exported binary and its sidecars disagree on channel count.
	vol := NewMemVolume()
	vol.AddWell(WellSpec{
		Stream:     "well000",
		Nested:     true,
		FS:         20000,
		Mapping:    testMapping,
		ChannelIDs: []int64{7, 3},
		Raw2D:      planar2D(testFrames),
	})

	_, err := NewStore(vol, "plate.h5", "well000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geometry resolves 2 channels")
	assert.Contains(t, err.Error(), "raw array holds 3")
}

func TestGeometryUnknownChannelID(t *testing.T) {
	vol := NewMemVolume()
	vol.AddWell(WellSpec{
		Stream:     "well000",
		Nested:     true,
		FS:         20000,
		Mapping:    testMapping,
		ChannelIDs: []int64{7, 99},
		Raw2D:      planar2D(testFrames),
	})

	_, err := NewStore(vol, "plate.h5", "well000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99")
}

func TestDurationAndProbe(t *testing.T) {
	for _, oneDim := range []bool{false, true} {
		vol := newTestVolume(t, true, oneDim)
		s, err := NewStore(vol, "plate.h5", "well000")
		require.NoError(t, err)
		assert.InDelta(t, 4.0/20000.0, s.DurationSeconds(), 1e-12)

		d, err := ProbeDuration(vol, "plate.h5", "well000")
		require.NoError(t, err)
		assert.InDelta(t, s.DurationSeconds(), d, 1e-12)
	}

	vol := NewMemVolume()
	vol.AddGroup("wells/well000/misc")
	_, err := ProbeDuration(vol, "plate.h5", "well000")
	var layoutErr *LayoutError
	assert.True(t, errors.As(err, &layoutErr))
}

// closeCounter wraps a Volume and counts Close calls.
type closeCounter struct {
	Volume
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return c.Volume.Close()
}

func TestCloseLeavesCallerOwnedVolumeOpen(t *testing.T) {
	vol := &closeCounter{Volume: newTestVolume(t, true, false)}

	s, err := NewStore(vol, "plate.h5", "well000")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Zero(t, vol.closes, "the caller retains ownership of its volume")
}

func TestMidpoint(t *testing.T) {
	assert.Equal(t, 32768.0, Kind{Bits: 16, Unsigned: true}.Midpoint())
	assert.Equal(t, 0.0, Kind{Bits: 16}.Midpoint())
	assert.Equal(t, 0.0, Kind{Bits: 32, Float: true}.Midpoint())
	assert.Equal(t, 128.0, Kind{Bits: 8, Unsigned: true}.Midpoint())
}
