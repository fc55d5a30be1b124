package qc

import (
	"fmt"
	"os"
	"strings"

	"github.com/sbinet/npyio"
)

// loadArray reads a .npy file as float64 values plus its shape. Integer and
// float element types of any width are accepted; values are converted.
func loadArray(path string) ([]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	shape := append([]int(nil), r.Header.Descr.Shape...)

	var vals []float64
	switch strings.TrimLeft(r.Header.Descr.Type, "<>|=") {
	case "i1":
		vals, err = readAs[int8](r)
	case "i2":
		vals, err = readAs[int16](r)
	case "i4":
		vals, err = readAs[int32](r)
	case "i8":
		vals, err = readAs[int64](r)
	case "u1":
		vals, err = readAs[uint8](r)
	case "u2":
		vals, err = readAs[uint16](r)
	case "u4":
		vals, err = readAs[uint32](r)
	case "u8":
		vals, err = readAs[uint64](r)
	case "f4":
		vals, err = readAs[float32](r)
	case "f8":
		vals, err = readAs[float64](r)
	default:
		return nil, nil, fmt.Errorf("read %s: unsupported dtype %q", path, r.Header.Descr.Type)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vals, shape, nil
}

func readAs[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64](r *npyio.Reader) ([]float64, error) {
	var raw []T
	if err := r.Read(&raw); err != nil {
		return nil, err
	}
	vals := make([]float64, len(raw))
	for i, v := range raw {
		vals[i] = float64(v)
	}
	return vals, nil
}
