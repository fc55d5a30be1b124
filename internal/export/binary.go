// Package export materializes preprocessed recordings to the flat binary
// format and sidecar files consumed by the spike-sort engine.
package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/banshee-data/mxwsort/internal/fsutil"
	"github.com/banshee-data/mxwsort/internal/preprocess"
)

// DefaultChunkSeconds bounds how much of the recording is materialized at a
// time. One second keeps peak memory manageable on small lab machines;
// larger values only trade memory for fewer reads.
const DefaultChunkSeconds = 1.0

// bytesPerSample is the width of the fixed int16 export dtype.
const bytesPerSample = 2

// WriteBinary streams the recording to path as little-endian int16,
// frame-major interleaved by channel, in strict frame order. The recording
// is materialized in bounded sequential chunks, never whole.
func WriteBinary(rec *preprocess.Recording, fs fsutil.FileSystem, path string) (err error) {
	w, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	chunk := int(math.Round(rec.SampleRate() * DefaultChunkSeconds))
	if chunk < 1 {
		chunk = 1
	}

	bw := bufio.NewWriter(w)
	total := rec.NumFrames()
	var buf []byte
	for start := 0; start < total; start += chunk {
		end := start + chunk
		if end > total {
			end = total
		}
		block, err := rec.ReadBlock(start, end)
		if err != nil {
			return fmt.Errorf("read frames [%d,%d): %w", start, end, err)
		}
		rows, cols := block.Dims()
		need := rows * cols * bytesPerSample
		if cap(buf) < need {
			buf = make([]byte, need)
		}
		buf = buf[:need]
		o := 0
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				binary.LittleEndian.PutUint16(buf[o:], uint16(clampInt16(block.At(i, j))))
				o += bytesPerSample
			}
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func clampInt16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
