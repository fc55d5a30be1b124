package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mxwsort/internal/fsutil"
	"github.com/banshee-data/mxwsort/internal/rawstore"
)

// Probe is the geometry sidecar consumed by the spike-sort engine.
type Probe struct {
	ChanMap []int     `json:"chanMap"`
	Xc      []float64 `json:"xc"`
	Yc      []float64 `json:"yc"`
	Kcoords []int     `json:"kcoords"`
	NChan   int       `json:"n_chan"`
}

// NewProbe builds a probe record from channel geometry. Every channel gets
// group tag zero.
func NewProbe(geom []rawstore.XY) Probe {
	n := len(geom)
	p := Probe{
		ChanMap: make([]int, n),
		Xc:      make([]float64, n),
		Yc:      make([]float64, n),
		Kcoords: make([]int, n),
		NChan:   n,
	}
	for i, xy := range geom {
		p.ChanMap[i] = i
		p.Xc[i] = xy.X
		p.Yc[i] = xy.Y
	}
	return p
}

// WriteProbeJSON writes the probe sidecar.
func WriteProbeJSON(geom []rawstore.XY, fs fsutil.FileSystem, path string) error {
	data, err := json.MarshalIndent(NewProbe(geom), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal probe: %w", err)
	}
	if err := fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteChannelXY writes the channel positions as an N x 2 float64 .npy
// array.
func WriteChannelXY(geom []rawstore.XY, fs fsutil.FileSystem, path string) error {
	if len(geom) == 0 {
		return fmt.Errorf("write %s: empty channel geometry", path)
	}
	m := mat.NewDense(len(geom), 2, nil)
	for i, xy := range geom {
		m.Set(i, 0, xy.X)
		m.Set(i, 1, xy.Y)
	}
	var buf bytes.Buffer
	if err := npyio.Write(&buf, m); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// RunMeta is the run-metadata sidecar: everything needed to reproduce the
// export.
type RunMeta struct {
	H5           string   `json:"h5"`
	Stream       string   `json:"stream"`
	FsHz         float64  `json:"fs_hz"`
	StartS       float64  `json:"start_s"`
	DurS         *float64 `json:"dur_s"` // nil means full recording
	BpMinHz      float64  `json:"bp_min_hz"`
	BpMaxFracNyq float64  `json:"bp_max_frac_nyq"`
	NChan        int      `json:"n_chan"`
}

// WriteMetaJSON writes the run-metadata sidecar.
func WriteMetaJSON(meta RunMeta, fs fsutil.FileSystem, path string) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run meta: %w", err)
	}
	if err := fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
