package bridge

import (
	"math"
	"strings"

	ncerr "twbridge/internal/errors"
)

// Limits enforced before a command is sent.
const (
	MinSteps = 1
	MaxSteps = 64
	MinSlot  = 1
	MaxSlot  = 27
	MinCount = 1
	MaxCount = 64
)

// Directions an agent can move or place toward.
var Directions = []string{"forward", "back", "left", "right", "up", "down"}

// Turns an agent can rotate.
var Turns = []string{"left", "right"}

func required(arg, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ncerr.Missing(arg)
	}
	return v, nil
}

func oneOf(arg, v string, allowed []string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if norm == a {
			return norm, nil
		}
	}
	return "", ncerr.Invalid(arg, v, "invalid "+arg)
}

// Steps converts a requested distance into the block count sent to the
// server: the magnitude rounded half away from zero, clamped to
// [MinSteps, MaxSteps].
func Steps(dist float64) (int, error) {
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		return 0, ncerr.Invalid("blocks", dist, "blocks must be a number")
	}
	n := math.Round(math.Abs(dist))
	return int(math.Max(MinSteps, math.Min(n, MaxSteps))), nil
}

func inRange(arg string, v, lo, hi int, msg string) error {
	if v < lo || v > hi {
		return ncerr.Invalid(arg, v, msg)
	}
	return nil
}

func checkSlot(slot int) error {
	return inRange("slot", slot, MinSlot, MaxSlot, "slot must be 1-27")
}

func checkCount(count int) error {
	return inRange("amount", count, MinCount, MaxCount, "amount must be 1-64")
}
