// Package event decides, frame by frame, whether the ball scored or touched a
// goal. Nothing is carried over between frames.
package event

import (
	"encoding/json"
	"math"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
)

// Type is the outcome of one frame.
type Type int

const (
	None Type = iota
	Contact
	GoalScored
)

func (t Type) String() string {
	switch t {
	case Contact:
		return "contact"
	case GoalScored:
		return "goal_scored"
	default:
		return "none"
	}
}

// MarshalText encodes the type by its wire name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names MarshalText produces.
func (t *Type) UnmarshalText(text []byte) error {
	switch string(text) {
	case "contact":
		*t = Contact
	case "goal_scored":
		*t = GoalScored
	default:
		*t = None
	}
	return nil
}

// Result describes the frame. Distance is +Inf when no ball/goal pair came
// close enough to count.
type Result struct {
	HasEvent bool                     `json:"has_event"`
	Type     Type                     `json:"event_type"`
	Ball     *detection.Detection     `json:"ball,omitempty"`
	Goal     *detection.GoalCandidate `json:"goal,omitempty"`
	Distance float64                  `json:"distance"`
}

// NoEvent is the result of a quiet frame.
func NoEvent() Result {
	return Result{Type: None, Distance: math.Inf(1)}
}

// MarshalJSON writes an infinite distance as null.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	var dist *float64
	if !math.IsInf(r.Distance, 0) && !math.IsNaN(r.Distance) {
		d := r.Distance
		dist = &d
	}
	return json.Marshal(struct {
		plain
		Distance *float64 `json:"distance"`
	}{plain(r), dist})
}

// Config holds the classifier thresholds.
type Config struct {
	MinBallConfidence float64 `mapstructure:"min_ball_confidence"` // balls must be strictly above to be considered
	MinContactRadius  float64 `mapstructure:"min_contact_radius"`  // px, floor of the per-pair contact threshold
	ContactRadiusFrac float64 `mapstructure:"contact_radius_frac"` // fraction of the ball radius used as threshold
	MaxContactDist    float64 `mapstructure:"max_contact_dist"`    // px, the closest pair must be strictly nearer
}

// DefaultConfig returns the distance bands and the ball confidence floor used for events.
func DefaultConfig() Config {
	return Config{
		MinBallConfidence: 0.95,
		MinContactRadius:  5,
		ContactRadiusFrac: 0.3,
		MaxContactDist:    20,
	}
}

// Classify looks at every confident ball against every goal. A ball center
// inside a goal box is a goal and ends the scan. Otherwise the pair with the
// smallest gap under its contact threshold is a contact, provided that gap is
// below MaxContactDist.
func (c Config) Classify(balls []detection.Detection, goals []detection.GoalCandidate) Result {
	confident := make([]detection.Detection, 0, len(balls))
	for _, b := range balls {
		if b.Confidence > c.MinBallConfidence {
			confident = append(confident, b)
		}
	}
	if len(confident) == 0 || len(goals) == 0 {
		return NoEvent()
	}

	best := NoEvent()
	for i := range confident {
		b := confident[i]
		center := b.Center()
		threshold := c.contactThreshold(b.Box)
		for j := range goals {
			g := goals[j]
			if g.Box.Contains(center) {
				return Result{HasEvent: true, Type: GoalScored, Ball: &b, Goal: &g, Distance: 0}
			}

			d := geom.DistanceToBox(g.Box, center)
			if d <= threshold && d < best.Distance {
				best.Ball, best.Goal, best.Distance = &b, &g, d
			}
		}
	}

	if best.Ball != nil && best.Distance < c.MaxContactDist {
		best.HasEvent = true
		best.Type = Contact
		return best
	}
	return NoEvent()
}

func (c Config) contactThreshold(ball geom.Box) float64 {
	r := math.Max(ball.Width(), ball.Height()) / 2
	return math.Max(c.MinContactRadius, c.ContactRadiusFrac*r)
}
