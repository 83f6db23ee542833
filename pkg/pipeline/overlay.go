package pipeline

import (
	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/event"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
)

// Overlay is what a renderer needs to annotate a frame.
type Overlay struct {
	Balls      []detection.Detection
	Goals      []detection.GoalCandidate
	Trajectory []geom.Point
	EventText  string
}

// Overlay extracts the drawable parts of the result.
func (r Result) Overlay() Overlay {
	o := Overlay{
		Balls:     r.Balls,
		Goals:     r.Goals,
		EventText: EventText(r.Event.Type),
	}
	if r.Trajectory != nil {
		o.Trajectory = r.Trajectory.Positions
	}
	return o
}

// EventText is the banner shown for an event type, empty for none.
func EventText(t event.Type) string {
	switch t {
	case event.GoalScored:
		return utils.GoalScoredText
	case event.Contact:
		return utils.ContactText
	default:
		return ""
	}
}
