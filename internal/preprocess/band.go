package preprocess

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// nyquistClampFraction caps the derived upper band edge just under the
// Nyquist frequency when the requested fraction reaches or exceeds it.
const nyquistClampFraction = 0.99

// BandParamError reports band-restriction parameters that violate the
// ordering constraint 0 < min < max < nyquist.
type BandParamError struct {
	MinHz   float64
	MaxHz   float64
	Nyquist float64
}

func (e *BandParamError) Error() string {
	return fmt.Sprintf("bad band restriction: min_hz=%g max_hz=%g nyquist=%g (need 0 < min < max < nyquist)", e.MinHz, e.MaxHz, e.Nyquist)
}

// ResolveBand derives the band edges from a minimum frequency and a fraction
// of Nyquist. maxHz = fracNyquist * fs/2, clamped to 0.99*nyquist when it
// would reach Nyquist; the result must satisfy 0 < min < max < nyquist.
func ResolveBand(minHz, fracNyquist, fs float64) (float64, float64, error) {
	nyq := fs / 2.0
	maxHz := fracNyquist * nyq
	if maxHz >= nyq {
		maxHz = nyquistClampFraction * nyq
	}
	if !(0 < minHz && minHz < maxHz && maxHz < nyq) {
		return 0, 0, &BandParamError{MinHz: minHz, MaxHz: maxHz, Nyquist: nyq}
	}
	return minHz, maxHz, nil
}

// Band appends a band-restriction stage keeping signal energy in
// [minHz, maxHz] with maxHz derived from fracNyquist (see ResolveBand).
// Filtering is FFT-based per materialized block: coefficients outside the
// band are zeroed and the block is inverse-transformed.
func (r *Recording) Band(minHz, fracNyquist float64) (*Recording, error) {
	fs := r.store.SampleRate()
	lo, hi, err := ResolveBand(minHz, fracNyquist, fs)
	if err != nil {
		return nil, err
	}
	r.stages = append(r.stages, Stage{
		Name: fmt.Sprintf("band_%g_%g", lo, hi),
		apply: func(block *mat.Dense) {
			bandPassBlock(block, fs, lo, hi)
		},
	})
	return r, nil
}

// bandPassBlock zeroes Fourier coefficients outside [loHz, hiHz] for every
// channel column of a frames-by-channels block, in place.
func bandPassBlock(block *mat.Dense, fs, loHz, hiHz float64) {
	rows, cols := block.Dims()
	if rows < 2 {
		return
	}
	fft := fourier.NewFFT(rows)
	col := make([]float64, rows)
	coeff := make([]complex128, rows/2+1)
	for c := 0; c < cols; c++ {
		mat.Col(col, c, block)
		coeff = fft.Coefficients(coeff, col)
		for i := range coeff {
			hz := fft.Freq(i) * fs
			if hz < loHz || hz > hiHz {
				coeff[i] = 0
			}
		}
		col = fft.Sequence(col, coeff)
		inv := 1 / float64(rows)
		for i := range col {
			col[i] *= inv
		}
		block.SetCol(c, col)
	}
}
