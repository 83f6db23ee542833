package trajectory

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/pkg/errors"
)

// PredictorConfig holds the constant-acceleration Kalman model parameters.
type PredictorConfig struct {
	Ux       float64 `mapstructure:"ux"`
	Uy       float64 `mapstructure:"uy"`
	StdDevA  float64 `mapstructure:"std_dev_a"`
	StdDevMx float64 `mapstructure:"std_dev_mx"`
	StdDevMy float64 `mapstructure:"std_dev_my"`
}

// DefaultPredictorConfig returns the Kalman noise settings used for ball tracks.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		Ux:       1.0,
		Uy:       1.0,
		StdDevA:  2.0,
		StdDevMx: 0.1,
		StdDevMy: 0.1,
	}
}

// Predict runs a 2D Kalman filter over the history centers and returns the
// filter's estimate of the next ball position. The step is the mean time
// between entries (1 when indices stand in for time).
func (c PredictorConfig) Predict(entries []Entry) (geom.Point, error) {
	if len(entries) < MinPoints {
		return geom.Point{}, errors.Errorf("trajectory: need %d points to predict, got %d", MinPoints, len(entries))
	}

	ts := Times(entries)
	dt := (ts[len(ts)-1] - ts[0]) / float64(len(ts)-1)
	if dt <= 0 {
		dt = 1
	}

	first := entries[0].Ball.Center()
	kf := kalman_filter.NewKalman2D(dt, c.Ux, c.Uy, c.StdDevA, c.StdDevMx, c.StdDevMy, kalman_filter.WithState2D(first.X, first.Y))
	for i, e := range entries[1:] {
		kf.Predict()
		p := e.Ball.Center()
		if err := kf.Update(p.X, p.Y); err != nil {
			return geom.Point{}, errors.Wrapf(err, "Can't update ball predictor at entry %d", i+1)
		}
	}
	kf.Predict()
	x, y := kf.GetState()
	return geom.Pt(x, y), nil
}
