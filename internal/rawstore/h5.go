package rawstore

import (
	"fmt"

	"gonum.org/v1/hdf5"
)

// HDF5Volume adapts an HDF5 plate file to the Volume interface. Windowed raw
// reads go through dataspace hyperslab selection so only the requested byte
// range is pulled from disk.
type HDF5Volume struct {
	path   string
	file   *hdf5.File
	closed bool
}

// OpenHDF5Volume opens an HDF5 container read-only.
func OpenHDF5Volume(path string) (*HDF5Volume, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &HDF5Volume{path: path, file: f}, nil
}

// Close releases the file handle. Close is idempotent.
func (v *HDF5Volume) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	return v.file.Close()
}

// GroupNames returns the direct children of a group, in link order.
func (v *HDF5Volume) GroupNames(path string) ([]string, error) {
	g, err := v.file.OpenGroup(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open group %s: %w", v.path, path, err)
	}
	defer g.Close()

	n, err := g.NumObjects()
	if err != nil {
		return nil, fmt.Errorf("%s: list group %s: %w", v.path, path, err)
	}
	names := make([]string, 0, n)
	for i := uint(0); i < n; i++ {
		name, err := g.ObjectNameByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("%s: list group %s: %w", v.path, path, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// HasGroup reports whether a group exists at path.
func (v *HDF5Volume) HasGroup(path string) bool {
	g, err := v.file.OpenGroup(path)
	if err != nil {
		return false
	}
	g.Close()
	return true
}

// HasDataset reports whether a dataset exists at path.
func (v *HDF5Volume) HasDataset(path string) bool {
	ds, err := v.file.OpenDataset(path)
	if err != nil {
		return false
	}
	ds.Close()
	return true
}

// DatasetDims returns the dimensions of the dataset at path.
func (v *HDF5Volume) DatasetDims(path string) ([]int, error) {
	ds, err := v.file.OpenDataset(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open dataset %s: %w", v.path, path, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, fmt.Errorf("%s: dims of %s: %w", v.path, path, err)
	}
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = int(d)
	}
	return out, nil
}

// DatasetKind returns the element type of the dataset at path.
func (v *HDF5Volume) DatasetKind(path string) (Kind, error) {
	ds, err := v.file.OpenDataset(path)
	if err != nil {
		return Kind{}, fmt.Errorf("%s: open dataset %s: %w", v.path, path, err)
	}
	defer ds.Close()

	dt, err := ds.Datatype()
	if err != nil {
		return Kind{}, fmt.Errorf("%s: datatype of %s: %w", v.path, path, err)
	}
	defer dt.Close()

	kind := Kind{Bits: int(dt.Size()) * 8}
	switch dt.Class() {
	case hdf5.T_FLOAT:
		kind.Float = true
	case hdf5.T_INTEGER:
		kind.Unsigned = dt.Equal(hdf5.T_NATIVE_UINT8) ||
			dt.Equal(hdf5.T_NATIVE_UINT16) ||
			dt.Equal(hdf5.T_NATIVE_UINT32) ||
			dt.Equal(hdf5.T_NATIVE_UINT64)
	default:
		return Kind{}, fmt.Errorf("%s: dataset %s has non-numeric class %v", v.path, path, dt.Class())
	}
	return kind, nil
}

// ReadScalarFloat reads a scalar numeric dataset; the HDF5 library converts
// the stored type to float64.
func (v *HDF5Volume) ReadScalarFloat(path string) (float64, error) {
	ds, err := v.file.OpenDataset(path)
	if err != nil {
		return 0, fmt.Errorf("%s: open dataset %s: %w", v.path, path, err)
	}
	defer ds.Close()

	// Maxwell writes sampling as a one-element vector on some firmware
	// revisions, so read into a slice and take the first value.
	space := ds.Space()
	n := space.SimpleExtentNPoints()
	space.Close()
	if n < 1 {
		n = 1
	}
	vals := make([]float64, n)
	if err := ds.Read(&vals); err != nil {
		return 0, fmt.Errorf("%s: read %s: %w", v.path, path, err)
	}
	return vals[0], nil
}

// ReadIntVector reads a 1D integer dataset.
func (v *HDF5Volume) ReadIntVector(path string) ([]int64, error) {
	ds, err := v.file.OpenDataset(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open dataset %s: %w", v.path, path, err)
	}
	defer ds.Close()

	space := ds.Space()
	n := space.SimpleExtentNPoints()
	space.Close()
	vals := make([]int64, n)
	if err := ds.Read(&vals); err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", v.path, path, err)
	}
	return vals, nil
}

// mappingRecord mirrors the on-disk compound rows of settings/mapping.
// Member names must match the file's compound field names.
type mappingRecord struct {
	Channel   int32   `hdf5:"channel"`
	Electrode int32   `hdf5:"electrode"`
	X         float32 `hdf5:"x"`
	Y         float32 `hdf5:"y"`
}

// ReadMappingTable reads the compound channel-mapping dataset.
func (v *HDF5Volume) ReadMappingTable(path string) ([]ChannelMapping, error) {
	ds, err := v.file.OpenDataset(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open dataset %s: %w", v.path, path, err)
	}
	defer ds.Close()

	space := ds.Space()
	n := space.SimpleExtentNPoints()
	space.Close()
	recs := make([]mappingRecord, n)
	if err := ds.Read(&recs); err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", v.path, path, err)
	}
	rows := make([]ChannelMapping, len(recs))
	for i, r := range recs {
		rows[i] = ChannelMapping{Channel: r.Channel, Electrode: r.Electrode, X: r.X, Y: r.Y}
	}
	return rows, nil
}

// ReadRawWindow reads a hyperslab of the raw sample array.
func (v *HDF5Volume) ReadRawWindow(path string, offset, count []int) ([]float64, error) {
	ds, err := v.file.OpenDataset(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open dataset %s: %w", v.path, path, err)
	}
	defer ds.Close()

	filespace := ds.Space()
	defer filespace.Close()

	offs := make([]uint, len(offset))
	cnt := make([]uint, len(count))
	n := 1
	for i := range offset {
		offs[i] = uint(offset[i])
		cnt[i] = uint(count[i])
		n *= count[i]
	}
	if err := filespace.SelectHyperslab(offs, nil, cnt, nil); err != nil {
		return nil, fmt.Errorf("%s: select window of %s: %w", v.path, path, err)
	}
	memspace, err := hdf5.CreateSimpleDataspace(cnt, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: window dataspace for %s: %w", v.path, path, err)
	}
	defer memspace.Close()

	// Read as float64 and let the library convert from the stored type;
	// unsigned reinterpretation happens downstream off the dataset kind.
	out := make([]float64, n)
	if err := ds.ReadSubset(&out, memspace, filespace); err != nil {
		return nil, fmt.Errorf("%s: read window of %s: %w", v.path, path, err)
	}
	return out, nil
}
