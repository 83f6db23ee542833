package goal

import (
	"math"
	"sort"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
)

// CrossbarLift is how far above the post tops the goal box reaches, as a
// fraction of the post height.
const CrossbarLift = 0.1

// FromPosts spans a goal between the leftmost and rightmost of the given
// post detections. The top edge is raised by CrossbarLift to include the
// crossbar and the confidence is the weaker of the two posts. At least two
// posts are needed.
func FromPosts(posts []detection.Detection) (detection.GoalCandidate, bool) {
	if len(posts) < 2 {
		return detection.GoalCandidate{}, false
	}

	sorted := append([]detection.Detection(nil), posts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Center().X < sorted[j].Center().X
	})
	left, right := sorted[0], sorted[len(sorted)-1]

	top := math.Min(left.Box.Y1, right.Box.Y1)
	bottom := math.Max(left.Box.Y2, right.Box.Y2)
	box := geom.NewBox(left.Box.X1, top-(bottom-top)*CrossbarLift, right.Box.X2, bottom)
	if !box.Valid() {
		return detection.GoalCandidate{}, false
	}

	conf := math.Min(left.Confidence, right.Confidence)
	return detection.NewGoal(box, conf, detection.MethodModel, box.Corners()), true
}
