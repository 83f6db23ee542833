package trajectory

import (
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"gonum.org/v1/gonum/floats"
)

// MinPoints is the shortest history a trajectory is computed for.
const MinPoints = 3

// Trajectory is recomputed from the history on every frame.
//
// Velocities[i] is the step from Positions[i] to Positions[i+1] divided by
// the elapsed time, Accelerations[i] is the change from Velocities[i] to
// Velocities[i+1] divided by the time between Positions[i+1] and
// Positions[i+2]. A step with no positive elapsed time contributes a zero
// vector.
type Trajectory struct {
	Positions     []geom.Point `json:"positions"`
	Velocities    []geom.Point `json:"velocities"`
	Accelerations []geom.Point `json:"accelerations"`
	Speed         float64      `json:"speed"`
	Predicted     *geom.Point  `json:"predicted,omitempty"`
}

// Estimate derives a trajectory from entries. It returns nil when fewer than
// MinPoints entries are given.
func Estimate(entries []Entry) *Trajectory {
	n := len(entries)
	if n < MinPoints {
		return nil
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	positions := make([]geom.Point, n)
	for i, e := range entries {
		c := e.Ball.Center()
		positions[i] = c
		xs[i], ys[i] = c.X, c.Y
	}
	ts := Times(entries)

	vx := rate(xs, ts[:n])
	vy := rate(ys, ts[:n])
	ax := rate(vx, ts[1:])
	ay := rate(vy, ts[1:])

	last := len(vx) - 1
	return &Trajectory{
		Positions:     positions,
		Velocities:    zip(vx, vy),
		Accelerations: zip(ax, ay),
		Speed:         floats.Norm([]float64{vx[last], vy[last]}, 2),
	}
}

// Times returns the time base of the entries in seconds. Real timestamps are
// used, relative to the first entry, when every entry has one; otherwise the
// entry indices are used for all of them.
func Times(entries []Entry) []float64 {
	ts := make([]float64, len(entries))
	for i, e := range entries {
		if e.Timestamp.IsZero() {
			for j := range ts {
				ts[j] = float64(j)
			}
			return ts
		}
		ts[i] = e.Timestamp.Sub(entries[0].Timestamp).Seconds()
	}
	return ts
}

// rate returns the finite differences of v divided by the matching
// differences of t. len(t) must be at least len(v).
func rate(v, t []float64) []float64 {
	if len(v) < 2 {
		return nil
	}
	dv := make([]float64, len(v)-1)
	dt := make([]float64, len(v)-1)
	floats.SubTo(dv, v[1:], v[:len(v)-1])
	floats.SubTo(dt, t[1:len(v)], t[:len(v)-1])
	for i := range dv {
		if dt[i] <= 0 {
			dv[i] = 0
			continue
		}
		dv[i] /= dt[i]
	}
	return dv
}

func zip(xs, ys []float64) []geom.Point {
	out := make([]geom.Point, len(xs))
	for i := range xs {
		out[i] = geom.Pt(xs[i], ys[i])
	}
	return out
}
