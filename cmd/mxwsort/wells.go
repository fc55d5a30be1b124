package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseWells decodes the -wells flag. "auto" (or empty) returns nil, which
// triggers per-file auto-detection. "a-b" is an inclusive range; otherwise
// the value is a comma-separated index list.
func parseWells(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "auto") {
		return nil, nil
	}

	if a, b, ok := strings.Cut(s, "-"); ok {
		lo, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q: %w", a, err)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q: %w", b, err)
		}
		if hi < lo {
			return nil, fmt.Errorf("range %d-%d is empty", lo, hi)
		}
		out := make([]int, 0, hi-lo+1)
		for w := lo; w <= hi; w++ {
			out = append(out, w)
		}
		return out, nil
	}

	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid well index %q: %w", part, err)
		}
		out = append(out, w)
	}
	return out, nil
}
