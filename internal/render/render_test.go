package render

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/hadley-cell/internal/domain"
)

func TestLine(t *testing.T) {
	assert.Equal(t, "North:  31.25, South: -28.50", Line(31.25, -28.5))
	assert.Equal(t, "North:    NaN, South:   5.00", Line(math.NaN(), 5))
}

func TestSummary(t *testing.T) {
	b := domain.Boundaries{
		North:     31.25,
		South:     math.NaN(),
		NorthStar: domain.CriticalPoint{Latitude: 12.5, Pressure: 50000, Value: 8.2e10},
		SouthStar: domain.CriticalPoint{Latitude: -10, Pressure: 50000, Value: -1.1e11},
		Crossings: []float64{-2.5, 31.25},
	}

	out := Summary("era/2010-01.nc", b)
	assert.Contains(t, out, "era/2010-01.nc")
	assert.Contains(t, out, " 31.25°")
	assert.Contains(t, out, "not found")
	assert.Contains(t, out, " 500 hPa")
	assert.Contains(t, out, "82.00 × 10⁹ kg/s")
	assert.Contains(t, out, "-2.50 31.25")
}

func TestTable(t *testing.T) {
	psi := sparse.ZerosDense(2, 3)
	psi.Set(2.5e9, 0, 0)
	psi.Set(-1e9, 1, 2)
	psi.Set(math.NaN(), 1, 1)

	out := Table(domain.StreamFunction{
		Psi:      psi,
		Pressure: []float64{40000, 75000},
		Latitude: []float64{-30, 0, 30},
	})
	assert.Contains(t, out, "hPa\\lat")
	assert.Contains(t, out, "   -30.0")
	assert.Contains(t, out, "     400")
	assert.Contains(t, out, "    2.50")
	assert.Contains(t, out, "   -1.00")
	assert.Contains(t, out, "nan")
}

func TestVerdict(t *testing.T) {
	assert.Contains(t, Verdict(0), "PASS")
	assert.Contains(t, Verdict(3), "FAIL (3 errors)")
}
