package node

import (
	"math"

	"github.com/audiolink/audiolink/lavalink"
)

var infPenalty = math.Inf(1)

// statsPenalty converts a stats snapshot to a load score. Playing players
// count linearly; system CPU load and frame loss grow exponentially so a
// struggling node falls out of favor fast.
func statsPenalty(s lavalink.Stats) float64 {
	total := float64(s.PlayingPlayers)
	total += math.Pow(1.05, 100*s.CPU.SystemLoad)*10 - 10

	if s.FrameStats != nil {
		if s.FrameStats.Nulled > 0 {
			null := math.Pow(1.03, 500*float64(s.FrameStats.Nulled)/3000)*300 - 300
			total += null * 2
		}
		if s.FrameStats.Deficit > 0 {
			total += math.Pow(1.03, 500*float64(s.FrameStats.Deficit)/3000)*600 - 600
		}
	}
	return total
}
