// Package rawstore reads multi-well electrophysiology recordings from
// hierarchical array containers and resolves their channel geometry.
package rawstore

// Kind describes the element type of a stored array.
type Kind struct {
	Bits     int
	Unsigned bool
	Float    bool
}

// Midpoint returns the representable range's midpoint for unsigned integer
// kinds, or 0 for signed and floating kinds.
func (k Kind) Midpoint() float64 {
	if k.Float || !k.Unsigned {
		return 0
	}
	return float64(uint64(1) << (k.Bits - 1))
}

// ChannelMapping is one row of a stream's channel-mapping table.
type ChannelMapping struct {
	Channel   int32
	Electrode int32
	X         float32
	Y         float32
}

// XY is a channel position in micrometres.
type XY struct {
	X float64
	Y float64
}

// Volume is path-addressed access to a hierarchical array container. Paths
// are slash-separated group/dataset names rooted at the container ("wells",
// "wells/well000/settings/sampling", ...).
//
// HDF5Volume backs production reads; MemVolume backs tests. Both must keep
// windowed reads proportional to the requested range: ReadRawWindow never
// materializes the full raw array.
type Volume interface {
	// GroupNames returns the names of the direct children of a group.
	GroupNames(path string) ([]string, error)

	// HasGroup reports whether a group exists at path.
	HasGroup(path string) bool

	// HasDataset reports whether a dataset exists at path.
	HasDataset(path string) bool

	// DatasetDims returns the dimensions of the dataset at path.
	DatasetDims(path string) ([]int, error)

	// DatasetKind returns the element type of the dataset at path.
	DatasetKind(path string) (Kind, error)

	// ReadScalarFloat reads a scalar numeric dataset as float64.
	ReadScalarFloat(path string) (float64, error)

	// ReadIntVector reads a 1D integer dataset.
	ReadIntVector(path string) ([]int64, error)

	// ReadMappingTable reads a compound channel-mapping dataset.
	ReadMappingTable(path string) ([]ChannelMapping, error)

	// ReadRawWindow reads a rectangular window of the raw sample array.
	// offset and count have one entry per dataset dimension; the result is
	// the selected elements in row-major order.
	ReadRawWindow(path string, offset, count []int) ([]float64, error)

	// Close releases the container. Close is idempotent.
	Close() error
}
