package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/ScreenShare/internal/domain"
)

func TestVolumeForSamePosition(t *testing.T) {
	p := domain.Point{X: 10, Y: -4}
	assert.Equal(t, 1.0, VolumeFor(p, p))
}

func TestVolumeAtBounds(t *testing.T) {
	for _, d := range []float64{0, 1, NearRadius, 200, 999, Cutoff, 1e9, math.MaxFloat64, math.Inf(1), math.NaN()} {
		v := VolumeAt(d)
		assert.GreaterOrEqual(t, v, 0.0, "distance %v", d)
		assert.LessOrEqual(t, v, 1.0, "distance %v", d)
	}
	assert.Equal(t, 0.0, VolumeAt(math.Inf(1)))
	assert.Equal(t, 0.0, VolumeAt(1e12))
}

func TestVolumeAtNonIncreasing(t *testing.T) {
	prev := VolumeAt(0)
	for d := 0.0; d <= Cutoff*2; d += 7.5 {
		v := VolumeAt(d)
		assert.LessOrEqual(t, v, prev, "volume rose at distance %v", d)
		prev = v
	}
}

func TestVolumeForIsSymmetric(t *testing.T) {
	a := domain.Point{X: 100, Y: 300}
	b := domain.Point{X: 420, Y: -80}
	assert.Equal(t, VolumeFor(a, b), VolumeFor(b, a))
}

func TestVolumeForExtremeCoordinates(t *testing.T) {
	a := domain.Point{X: -math.MaxFloat64, Y: 0}
	b := domain.Point{X: math.MaxFloat64, Y: 0}
	assert.Equal(t, 0.0, VolumeFor(a, b))
}
