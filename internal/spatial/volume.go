// Package spatial maps positions in the shared room to audio volume.
package spatial

import (
	"math"

	"github.com/dkeye/ScreenShare/internal/domain"
)

const (
	// NearRadius is the distance inside which a participant is heard at full volume.
	NearRadius = 150.0
	// Falloff controls how quickly volume drops past NearRadius.
	Falloff = 250.0
	// Cutoff is the distance from which a participant is silent.
	Cutoff = 1500.0
)

// Distance is the Euclidean distance between a and b.
func Distance(a, b domain.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// VolumeFor returns the volume in [0,1] at which a participant standing at
// remote is heard from local. It never increases with distance.
func VolumeFor(local, remote domain.Point) float64 {
	return VolumeAt(Distance(local, remote))
}

// VolumeAt is VolumeFor expressed on a precomputed distance.
func VolumeAt(d float64) float64 {
	switch {
	case math.IsNaN(d), d >= Cutoff:
		return 0
	case d <= NearRadius:
		return 1
	}
	k := 1 + (d-NearRadius)/Falloff
	v := 1 / (k * k)
	return clamp(v)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
