package rawstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamName(t *testing.T) {
	assert.Equal(t, "well000", StreamName(0))
	assert.Equal(t, "well005", StreamName(5))
	assert.Equal(t, "well123", StreamName(123))
}

func TestDetectWells(t *testing.T) {
	vol := NewMemVolume()
	vol.AddGroup("wells/well003")
	vol.AddGroup("wells/well000")
	vol.AddGroup("wells/well010")
	vol.AddGroup("wells/notawell")
	vol.AddGroup("wells/wellabc")

	det := DetectWells(vol)
	assert.False(t, det.Fallback)
	assert.Equal(t, []int{0, 3, 10}, det.Wells)
}

func TestDetectWellsFallback(t *testing.T) {
	t.Run("no wells group", func(t *testing.T) {
		det := DetectWells(NewMemVolume())
		assert.True(t, det.Fallback)
		assert.Equal(t, DefaultWells, det.Wells)
	})

	t.Run("no parseable entries", func(t *testing.T) {
		vol := NewMemVolume()
		vol.AddGroup("wells/wellxyz")
		det := DetectWells(vol)
		assert.True(t, det.Fallback)
		assert.Equal(t, DefaultWells, det.Wells)
	})
}

func TestDetectWellsFallbackIsACopy(t *testing.T) {
	det := DetectWells(NewMemVolume())
	det.Wells[0] = 99
	assert.Equal(t, 0, DefaultWells[0])
}

func TestDetectWellsInFileOpenFailure(t *testing.T) {
	det := DetectWellsInFile("/does/not/exist.h5")
	assert.True(t, det.Fallback)
	assert.Equal(t, DefaultWells, det.Wells)
}
