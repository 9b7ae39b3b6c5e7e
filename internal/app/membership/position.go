package membership

import (
	"hash/fnv"
	"math"

	"github.com/dkeye/ScreenShare/internal/domain"
)

const (
	ringInner = 200.0
	ringWidth = 200.0
)

func hash01(s string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()) / float64(math.MaxUint32)
}

// InitialPosition places id on a ring around the room center. The angle and
// radius come from two salted hashes of id, so the same id always lands on
// the same point.
func InitialPosition(id domain.ParticipantID, room domain.Point) domain.Point {
	angle := hash01("d"+string(id)) * 2 * math.Pi
	radius := hash01("r"+string(id))*ringWidth + ringInner
	return domain.Point{
		X: room.X/2 - math.Sin(angle)*radius,
		Y: room.Y/2 - math.Cos(angle)*radius,
	}
}
