package challenge

import (
	"math"

	"github.com/zulandar/drydock/internal/models"
)

// DecayValue drops a challenge's value quadratically with its solve count,
// from Initial down to Minimum after Decay solves. A zero decay disables
// scoring decay entirely.
func DecayValue(ch *models.Challenge, solves int64) int {
	if ch.Decay <= 0 {
		return ch.Initial
	}
	value := (float64(ch.Minimum-ch.Initial)/float64(ch.Decay*ch.Decay))*float64(solves*solves) + float64(ch.Initial)
	v := int(math.Ceil(value))
	if v < ch.Minimum {
		return ch.Minimum
	}
	return v
}
