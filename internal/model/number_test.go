package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"50.10", 50.10},
		{"0", 0},
		{"-1.5", -1.5},
		{"", 0},
		{"oops", 0},
		{"NaN", 0},
		{"nan", 0},
		{"Inf", 0},
		{"-Infinity", 0},
		{"1e400", 0},
		{"-1e400", 0},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseNumber(tc.in))
		})
	}
}
