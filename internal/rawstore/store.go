package rawstore

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// RawLayout tags the dimensionality of the raw sample array. It is resolved
// once when a stream is opened, never re-derived per read.
type RawLayout int

const (
	// Planar2D is a channels-by-samples matrix.
	Planar2D RawLayout = iota
	// Interleaved1D is a flat frame-major stream.
	Interleaved1D
)

func (l RawLayout) String() string {
	switch l {
	case Planar2D:
		return "planar2d"
	case Interleaved1D:
		return "interleaved1d"
	default:
		return fmt.Sprintf("RawLayout(%d)", int(l))
	}
}

// LayoutError reports that a stream's on-disk structure matches neither the
// nested nor the direct recording layout.
type LayoutError struct {
	Path   string
	Stream string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("cannot resolve recording layout for stream %q in %s: no rec* child and no direct settings group", e.Stream, e.Path)
}

// Store is an open recording stream. Channel count and sampling rate are
// fixed for the store's lifetime; reads are windowed and never materialize
// the full raw array.
type Store struct {
	vol     Volume
	owned   bool // Close releases vol only when the store opened it
	path    string
	stream  string
	recPath string
	rawPath string

	fs        float64
	layout    RawLayout
	kind      Kind
	nChannels int
	nFrames   int
	geom      []XY
}

// Open opens a stream in an HDF5 plate file. The returned store owns the
// file handle; Close releases it on every exit path.
func Open(path, stream string) (*Store, error) {
	vol, err := OpenHDF5Volume(path)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(vol, path, stream)
	if err != nil {
		vol.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewStore opens a stream on an already-open volume. The caller retains
// ownership of the volume; Store.Close does not release it.
func NewStore(vol Volume, path, stream string) (*Store, error) {
	recPath, err := resolveRecordingGroup(vol, path, stream)
	if err != nil {
		return nil, err
	}

	s := &Store{
		vol:     vol,
		path:    path,
		stream:  stream,
		recPath: recPath,
		rawPath: recPath + "/groups/routed/raw",
	}

	fs, err := vol.ReadScalarFloat(recPath + "/settings/sampling")
	if err != nil {
		return nil, fmt.Errorf("stream %s: sampling rate: %w", stream, err)
	}
	s.fs = fs

	mapping, err := vol.ReadMappingTable(recPath + "/settings/mapping")
	if err != nil {
		return nil, fmt.Errorf("stream %s: channel mapping: %w", stream, err)
	}

	dims, err := vol.DatasetDims(s.rawPath)
	if err != nil {
		return nil, fmt.Errorf("stream %s: raw array: %w", stream, err)
	}
	kind, err := vol.DatasetKind(s.rawPath)
	if err != nil {
		return nil, fmt.Errorf("stream %s: raw array: %w", stream, err)
	}
	s.kind = kind

	switch len(dims) {
	case 2:
		s.layout = Planar2D
		s.nChannels = dims[0]
		s.nFrames = dims[1]
	case 1:
		// Flat interleaved stream: channel count comes from the mapping
		// table, frame count from dividing the total length.
		s.layout = Interleaved1D
		s.nChannels = len(mapping)
		if s.nChannels == 0 {
			return nil, fmt.Errorf("stream %s: 1d raw array with empty channel mapping", stream)
		}
		s.nFrames = dims[0] / s.nChannels
	default:
		return nil, fmt.Errorf("stream %s: raw array has unsupported rank %d", stream, len(dims))
	}

	geom, err := resolveGeometry(vol, recPath, stream, mapping)
	if err != nil {
		return nil, err
	}
	if len(geom) != s.nChannels {
		return nil, fmt.Errorf("stream %s: geometry resolves %d channels but raw array holds %d", stream, len(geom), s.nChannels)
	}
	s.geom = geom

	return s, nil
}

// resolveRecordingGroup finds the group holding a stream's data. Streams
// either nest it under a rec* child (the common multi-well layout) or expose
// settings/ directly under the well group.
func resolveRecordingGroup(vol Volume, path, stream string) (string, error) {
	well := "wells/" + stream
	if !vol.HasGroup(well) {
		return "", &LayoutError{Path: path, Stream: stream}
	}
	names, err := vol.GroupNames(well)
	if err == nil {
		var recs []string
		for _, name := range names {
			if strings.HasPrefix(name, "rec") && vol.HasGroup(well+"/"+name) {
				recs = append(recs, name)
			}
		}
		if len(recs) > 0 {
			sort.Strings(recs)
			return well + "/" + recs[0], nil
		}
	}
	if vol.HasGroup(well + "/settings") {
		return well, nil
	}
	return "", &LayoutError{Path: path, Stream: stream}
}

// resolveGeometry builds the ordered channel positions. When the stream
// carries an explicit active-channel id list, each id is looked up in the
// mapping table by channel id; ids and table rows are not guaranteed to be
// in the same order. Without the list the table's own row order is used.
func resolveGeometry(vol Volume, recPath, stream string, mapping []ChannelMapping) ([]XY, error) {
	chPath := recPath + "/groups/routed/channels"
	if !vol.HasDataset(chPath) {
		geom := make([]XY, len(mapping))
		for i, m := range mapping {
			geom[i] = XY{X: float64(m.X), Y: float64(m.Y)}
		}
		return geom, nil
	}

	ids, err := vol.ReadIntVector(chPath)
	if err != nil {
		return nil, fmt.Errorf("stream %s: active channel list: %w", stream, err)
	}
	byID := make(map[int64]ChannelMapping, len(mapping))
	for _, m := range mapping {
		byID[int64(m.Channel)] = m
	}
	geom := make([]XY, len(ids))
	for i, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("stream %s: channel id %d not present in mapping table", stream, id)
		}
		geom[i] = XY{X: float64(m.X), Y: float64(m.Y)}
	}
	return geom, nil
}

// Path returns the source container path.
func (s *Store) Path() string { return s.path }

// Stream returns the stream name.
func (s *Store) Stream() string { return s.stream }

// SampleRate returns the sampling rate in Hz.
func (s *Store) SampleRate() float64 { return s.fs }

// NumChannels returns the read-out channel count.
func (s *Store) NumChannels() int { return s.nChannels }

// NumFrames returns the total frame count.
func (s *Store) NumFrames() int { return s.nFrames }

// Layout returns the resolved raw array layout.
func (s *Store) Layout() RawLayout { return s.layout }

// RawKind returns the element type of the raw array.
func (s *Store) RawKind() Kind { return s.kind }

// DurationSeconds returns the recording duration. Metadata only; no sample
// data is read.
func (s *Store) DurationSeconds() float64 {
	if s.fs == 0 {
		return 0
	}
	return float64(s.nFrames) / s.fs
}

// Geometry returns the channel positions, index-aligned with the read-out
// channel order. The slice is built once at open time; callers must not
// mutate it.
func (s *Store) Geometry() []XY { return s.geom }

// ReadWindow reads frames [startFrame, endFrame) for the given channel
// subset (nil means all channels) as a frames-by-channels matrix. The read
// is proportional to the window: only the selected range is pulled from the
// volume.
func (s *Store) ReadWindow(startFrame, endFrame int, channels []int) (*mat.Dense, error) {
	if startFrame < 0 || endFrame < startFrame || endFrame > s.nFrames {
		return nil, fmt.Errorf("stream %s: frame window [%d,%d) out of range [0,%d)", s.stream, startFrame, endFrame, s.nFrames)
	}
	frames := endFrame - startFrame
	if frames == 0 {
		return &mat.Dense{}, nil
	}

	var full *mat.Dense
	switch s.layout {
	case Planar2D:
		// Column slice of the channels-by-samples matrix, transposed to
		// frames-by-channels.
		data, err := s.vol.ReadRawWindow(s.rawPath, []int{0, startFrame}, []int{s.nChannels, frames})
		if err != nil {
			return nil, err
		}
		full = mat.NewDense(frames, s.nChannels, nil)
		for ch := 0; ch < s.nChannels; ch++ {
			for f := 0; f < frames; f++ {
				full.Set(f, ch, data[ch*frames+f])
			}
		}
	case Interleaved1D:
		// The flat stream is already frame-major.
		data, err := s.vol.ReadRawWindow(s.rawPath, []int{startFrame * s.nChannels}, []int{frames * s.nChannels})
		if err != nil {
			return nil, err
		}
		full = mat.NewDense(frames, s.nChannels, data)
	default:
		return nil, fmt.Errorf("stream %s: unknown raw layout %v", s.stream, s.layout)
	}

	if channels == nil {
		return full, nil
	}
	sub := mat.NewDense(frames, len(channels), nil)
	for i, ch := range channels {
		if ch < 0 || ch >= s.nChannels {
			return nil, fmt.Errorf("stream %s: channel index %d out of range [0,%d)", s.stream, ch, s.nChannels)
		}
		for f := 0; f < frames; f++ {
			sub.Set(f, i, full.At(f, ch))
		}
	}
	return sub, nil
}

// Close releases the store. If the store owns its volume (see Open) the
// underlying file handle is closed; Close is safe to call more than once.
func (s *Store) Close() error {
	if s.owned {
		return s.vol.Close()
	}
	return nil
}

// ProbeDuration reports a stream's duration reading metadata only. It is
// used by dry-run previews; the volume stays owned by the caller.
func ProbeDuration(vol Volume, path, stream string) (float64, error) {
	recPath, err := resolveRecordingGroup(vol, path, stream)
	if err != nil {
		return 0, err
	}
	fs, err := vol.ReadScalarFloat(recPath + "/settings/sampling")
	if err != nil {
		return 0, fmt.Errorf("stream %s: sampling rate: %w", stream, err)
	}
	if fs == 0 {
		return 0, fmt.Errorf("stream %s: sampling rate is zero", stream)
	}
	dims, err := vol.DatasetDims(recPath + "/groups/routed/raw")
	if err != nil {
		return 0, fmt.Errorf("stream %s: raw array: %w", stream, err)
	}
	switch len(dims) {
	case 2:
		return float64(dims[1]) / fs, nil
	case 1:
		mdims, err := vol.DatasetDims(recPath + "/settings/mapping")
		if err != nil {
			return 0, fmt.Errorf("stream %s: channel mapping: %w", stream, err)
		}
		if len(mdims) == 0 || mdims[0] == 0 {
			return 0, fmt.Errorf("stream %s: empty channel mapping", stream)
		}
		return float64(dims[0]/mdims[0]) / fs, nil
	default:
		return 0, fmt.Errorf("stream %s: raw array has unsupported rank %d", stream, len(dims))
	}
}
