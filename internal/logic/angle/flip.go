package angle

import "time"

// FlipStrategy drives a 0-180° positional pan servo. Targets above 180 are
// written as target-180 with the pane flipped over (tilt -> 180-tilt), so
// the sensors face the opposite half of the circle.
type FlipStrategy struct {
	Large time.Duration // settle after a flip
	Small time.Duration // settle after a same-half move
}

func (FlipStrategy) Name() string { return "flip" }

// Half reports whether a logical pan lies in the flipped (>180) half.
func Half(pan int) bool {
	return NormalizePan(pan) > TiltMax
}

// ResolvePan flips the pane exactly once when the target lies in the other
// half from the current pan. The flip is a tilt write issued before the pan
// write; both are covered by one large settle.
func (s FlipStrategy) ResolvePan(cur Orientation, target int) Plan {
	a := NormalizePan(target)
	phys := a
	if a > TiltMax {
		phys = a - TiltMax
	}

	if Half(a) != Half(cur.Pan) {
		return Plan{
			Pan: a,
			Commands: []Command{
				{Axis: Tilt, Kind: Angle, Value: TiltMax - cur.Tilt},
				{Axis: Pan, Kind: Angle, Value: phys, Wait: s.Large, Commit: true},
			},
		}
	}
	return Plan{
		Pan: a,
		Commands: []Command{
			{Axis: Pan, Kind: Angle, Value: phys, Wait: s.Small, Commit: true},
		},
	}
}
