package rawstore

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// MemVolume is an in-memory Volume for tests. It mirrors the on-disk layout
// of a multi-well plate file without touching the filesystem.
type MemVolume struct {
	groups  map[string]bool
	scalars map[string]float64
	ints    map[string][]int64
	tables  map[string][]ChannelMapping
	raws    map[string]*memRaw
}

type memRaw struct {
	dims []int
	kind Kind
	data []float64
}

// NewMemVolume creates an empty in-memory volume.
func NewMemVolume() *MemVolume {
	return &MemVolume{
		groups:  make(map[string]bool),
		scalars: make(map[string]float64),
		ints:    make(map[string][]int64),
		tables:  make(map[string][]ChannelMapping),
		raws:    make(map[string]*memRaw),
	}
}

// AddGroup registers a group and all of its ancestors.
func (v *MemVolume) AddGroup(p string) {
	p = path.Clean(p)
	for p != "." && p != "/" {
		v.groups[p] = true
		p = path.Dir(p)
	}
}

// AddScalar registers a scalar dataset.
func (v *MemVolume) AddScalar(p string, val float64) {
	v.AddGroup(path.Dir(p))
	v.scalars[path.Clean(p)] = val
}

// AddIntVector registers a 1D integer dataset.
func (v *MemVolume) AddIntVector(p string, vals []int64) {
	v.AddGroup(path.Dir(p))
	v.ints[path.Clean(p)] = vals
}

// AddMappingTable registers a channel-mapping dataset.
func (v *MemVolume) AddMappingTable(p string, rows []ChannelMapping) {
	v.AddGroup(path.Dir(p))
	v.tables[path.Clean(p)] = rows
}

// AddRaw registers a raw sample dataset with the given dimensions, element
// kind, and row-major data.
func (v *MemVolume) AddRaw(p string, dims []int, kind Kind, data []float64) {
	n := 1
	for _, d := range dims {
		n *= d
	}
	if n != len(data) {
		panic(fmt.Sprintf("rawstore: AddRaw dims %v want %d values, got %d", dims, n, len(data)))
	}
	v.AddGroup(path.Dir(p))
	v.raws[path.Clean(p)] = &memRaw{dims: dims, kind: kind, data: data}
}

// WellSpec describes a synthetic well for tests.
type WellSpec struct {
	Stream     string
	Nested     bool // place data under a rec0000 child group
	FS         float64
	Mapping    []ChannelMapping
	ChannelIDs []int64 // optional explicit active-channel id list

	// Exactly one of Raw2D (channels x samples) or Raw1D (interleaved)
	// should be provided.
	Raw2D [][]float64
	Raw1D []float64
	Kind  Kind
}

// AddWell builds the standard well hierarchy for a spec.
func (v *MemVolume) AddWell(spec WellSpec) {
	base := "wells/" + spec.Stream
	if spec.Nested {
		base += "/rec0000"
	}
	v.AddGroup(base + "/settings")
	v.AddGroup(base + "/groups/routed")
	v.AddScalar(base+"/settings/sampling", spec.FS)
	v.AddMappingTable(base+"/settings/mapping", spec.Mapping)
	if spec.ChannelIDs != nil {
		v.AddIntVector(base+"/groups/routed/channels", spec.ChannelIDs)
	}

	kind := spec.Kind
	if kind.Bits == 0 {
		kind = Kind{Bits: 16, Unsigned: true}
	}
	switch {
	case spec.Raw2D != nil:
		nch := len(spec.Raw2D)
		ns := len(spec.Raw2D[0])
		flat := make([]float64, 0, nch*ns)
		for _, row := range spec.Raw2D {
			flat = append(flat, row...)
		}
		v.AddRaw(base+"/groups/routed/raw", []int{nch, ns}, kind, flat)
	case spec.Raw1D != nil:
		v.AddRaw(base+"/groups/routed/raw", []int{len(spec.Raw1D)}, kind, spec.Raw1D)
	}
}

// GroupNames returns the direct children of a group, sorted.
func (v *MemVolume) GroupNames(p string) ([]string, error) {
	p = path.Clean(p)
	if !v.groups[p] {
		return nil, fmt.Errorf("rawstore: no group %q", p)
	}
	seen := make(map[string]bool)
	collect := func(child string) {
		if strings.HasPrefix(child, p+"/") {
			rest := strings.TrimPrefix(child, p+"/")
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				rest = rest[:i]
			}
			seen[rest] = true
		}
	}
	for g := range v.groups {
		collect(g)
	}
	for d := range v.scalars {
		collect(d)
	}
	for d := range v.ints {
		collect(d)
	}
	for d := range v.tables {
		collect(d)
	}
	for d := range v.raws {
		collect(d)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// HasGroup reports whether a group exists.
func (v *MemVolume) HasGroup(p string) bool {
	return v.groups[path.Clean(p)]
}

// HasDataset reports whether a dataset exists.
func (v *MemVolume) HasDataset(p string) bool {
	p = path.Clean(p)
	if _, ok := v.scalars[p]; ok {
		return true
	}
	if _, ok := v.ints[p]; ok {
		return true
	}
	if _, ok := v.tables[p]; ok {
		return true
	}
	_, ok := v.raws[p]
	return ok
}

// DatasetDims returns dataset dimensions.
func (v *MemVolume) DatasetDims(p string) ([]int, error) {
	p = path.Clean(p)
	if r, ok := v.raws[p]; ok {
		return append([]int(nil), r.dims...), nil
	}
	if vec, ok := v.ints[p]; ok {
		return []int{len(vec)}, nil
	}
	if rows, ok := v.tables[p]; ok {
		return []int{len(rows)}, nil
	}
	if _, ok := v.scalars[p]; ok {
		return nil, nil
	}
	return nil, fmt.Errorf("rawstore: no dataset %q", p)
}

// DatasetKind returns the element kind of a raw dataset.
func (v *MemVolume) DatasetKind(p string) (Kind, error) {
	r, ok := v.raws[path.Clean(p)]
	if !ok {
		return Kind{}, fmt.Errorf("rawstore: no raw dataset %q", p)
	}
	return r.kind, nil
}

// ReadScalarFloat reads a scalar dataset.
func (v *MemVolume) ReadScalarFloat(p string) (float64, error) {
	val, ok := v.scalars[path.Clean(p)]
	if !ok {
		return 0, fmt.Errorf("rawstore: no scalar dataset %q", p)
	}
	return val, nil
}

// ReadIntVector reads a 1D integer dataset.
func (v *MemVolume) ReadIntVector(p string) ([]int64, error) {
	vec, ok := v.ints[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("rawstore: no integer dataset %q", p)
	}
	return append([]int64(nil), vec...), nil
}

// ReadMappingTable reads a channel-mapping dataset.
func (v *MemVolume) ReadMappingTable(p string) ([]ChannelMapping, error) {
	rows, ok := v.tables[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("rawstore: no mapping dataset %q", p)
	}
	return append([]ChannelMapping(nil), rows...), nil
}

// ReadRawWindow reads a rectangular window of a raw dataset.
func (v *MemVolume) ReadRawWindow(p string, offset, count []int) ([]float64, error) {
	r, ok := v.raws[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("rawstore: no raw dataset %q", p)
	}
	if len(offset) != len(r.dims) || len(count) != len(r.dims) {
		return nil, fmt.Errorf("rawstore: window rank %d does not match dataset rank %d", len(offset), len(r.dims))
	}
	for i := range offset {
		if offset[i] < 0 || count[i] < 0 || offset[i]+count[i] > r.dims[i] {
			return nil, fmt.Errorf("rawstore: window [%d,%d) out of range for dim %d of %v", offset[i], offset[i]+count[i], i, r.dims)
		}
	}
	switch len(r.dims) {
	case 1:
		out := make([]float64, count[0])
		copy(out, r.data[offset[0]:offset[0]+count[0]])
		return out, nil
	case 2:
		out := make([]float64, 0, count[0]*count[1])
		for row := offset[0]; row < offset[0]+count[0]; row++ {
			start := row*r.dims[1] + offset[1]
			out = append(out, r.data[start:start+count[1]]...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("rawstore: unsupported dataset rank %d", len(r.dims))
	}
}

// Close is a no-op for the in-memory volume.
func (v *MemVolume) Close() error { return nil }
