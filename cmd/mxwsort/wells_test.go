package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWells(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"auto", nil},
		{"AUTO", nil},
		{"", nil},
		{"0-5", []int{0, 1, 2, 3, 4, 5}},
		{"2-2", []int{2}},
		{"0,2,4", []int{0, 2, 4}},
		{" 1 , 3 ", []int{1, 3}},
		{"3", []int{3}},
	}
	for _, tc := range cases {
		got, err := parseWells(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseWellsErrors(t *testing.T) {
	for _, in := range []string{"x", "1-x", "x-2", "5-1", "1,two"} {
		_, err := parseWells(in)
		assert.Error(t, err, "input %q", in)
	}
}
