package rawstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultWells is the canonical six-well plate index set used whenever
// auto-detection cannot enumerate the file's wells.
var DefaultWells = []int{0, 1, 2, 3, 4, 5}

// Detection is the result of well auto-detection. Fallback distinguishes
// indices actually read from the file from the canonical default set, so
// callers can log which one they got.
type Detection struct {
	Wells    []int
	Fallback bool
}

// StreamName returns the group name for a well index ("well003").
func StreamName(well int) string {
	return fmt.Sprintf("well%03d", well)
}

// DetectWells enumerates well<NNN> groups in a volume and returns their
// sorted unique indices. Auto-detection is advisory: any structural anomaly
// degrades to DefaultWells with Fallback set, and no error is ever returned.
func DetectWells(vol Volume) Detection {
	fallback := Detection{Wells: append([]int(nil), DefaultWells...), Fallback: true}

	if !vol.HasGroup("wells") {
		return fallback
	}
	names, err := vol.GroupNames("wells")
	if err != nil {
		return fallback
	}
	seen := make(map[int]bool)
	for _, name := range names {
		if !strings.HasPrefix(name, "well") {
			continue
		}
		idx, err := strconv.Atoi(name[len("well"):])
		if err != nil {
			continue
		}
		seen[idx] = true
	}
	if len(seen) == 0 {
		return fallback
	}
	wells := make([]int, 0, len(seen))
	for idx := range seen {
		wells = append(wells, idx)
	}
	sort.Ints(wells)
	return Detection{Wells: wells}
}

// DetectWellsInFile opens an HDF5 plate file and detects its wells. Open
// failures degrade to the default set like any other anomaly.
func DetectWellsInFile(path string) Detection {
	vol, err := OpenHDF5Volume(path)
	if err != nil {
		return Detection{Wells: append([]int(nil), DefaultWells...), Fallback: true}
	}
	defer vol.Close()
	return DetectWells(vol)
}
