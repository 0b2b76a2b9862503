package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/hadley-cell/internal/gridio"
)

func TestValidateLevels(t *testing.T) {
	tests := []struct {
		name   string
		levels []float64
		errors int
	}{
		{name: "descending levels cover both bands", levels: []float64{100000, 50000, 30000}},
		{name: "ascending levels cover both bands", levels: []float64{30000, 50000, 100000}},
		{name: "near-surface only", levels: []float64{100000, 95000}, errors: 2},
		{name: "upper troposphere only", levels: []float64{30000, 20000, 10000}, errors: 1},
		{name: "single level", levels: []float64{50000}, errors: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validateLevels(gridio.Grid{Level: tt.levels})
			assert.Len(t, p.errors, tt.errors, p.errors)
		})
	}
}
