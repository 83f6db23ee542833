package ball

import (
	"testing"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ball(x, y, w, h, conf float64) detection.Detection {
	return detection.Detection{
		Box:        geom.NewBox(x, y, x+w, y+h),
		Confidence: conf,
		ClassID:    utils.BallClass,
		Label:      detection.Label(utils.BallClass),
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.3, cfg.MinConfidence)
	assert.Equal(t, 0.5, cfg.MinAspectRatio)
	assert.Equal(t, 2.5, cfg.MaxAspectRatio)
	assert.Equal(t, 300.0, cfg.MinArea)
	assert.Equal(t, 10000.0, cfg.MaxArea)
	assert.Equal(t, 15.0, cfg.MinSide)
	assert.Equal(t, 300.0, cfg.MaxSide)
	assert.Equal(t, 3, cfg.MaxBalls)
}

func TestPlausible(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		d    detection.Detection
		want bool
	}{
		{"square", ball(0, 0, 40, 40, 0.9), true},
		{"aspect 2.5 edge", ball(0, 0, 50, 20, 0.9), true},
		{"aspect 3.0", ball(0, 0, 60, 20, 0.9), false},
		{"aspect 0.5 edge", ball(0, 0, 20, 40, 0.9), true},
		{"tall", ball(0, 0, 20, 45, 0.9), false},
		{"area 300 edge", ball(0, 0, 20, 15.0001, 0.9), true},
		{"area below", ball(0, 0, 17, 17, 0.9), false},
		{"area 10000 edge", ball(0, 0, 100, 100, 0.9), true},
		{"area above", ball(0, 0, 101, 100, 0.9), false},
		{"side 15 is too small", ball(0, 0, 15, 30, 0.9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Plausible(tt.d))
		})
	}
}

func TestFilterIgnoresOtherClassesAndLowConfidence(t *testing.T) {
	person := ball(0, 0, 40, 40, 0.99)
	person.ClassID = utils.PersonClass
	weak := ball(100, 100, 40, 40, 0.3)

	got := DefaultConfig().Filter([]detection.Detection{person, weak})
	assert.Empty(t, got)
}

func TestFilterRanksAndCaps(t *testing.T) {
	raw := []detection.Detection{
		ball(0, 0, 30, 30, 0.4),
		ball(50, 0, 30, 30, 0.9),
		ball(100, 0, 30, 30, 0.6),
		ball(150, 0, 30, 30, 0.7),
		ball(200, 0, 90, 20, 0.99), // aspect 4.5
	}
	got := DefaultConfig().Filter(raw)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{0.9, 0.7, 0.6}, []float64{got[0].Confidence, got[1].Confidence, got[2].Confidence})
	for _, d := range got {
		assert.True(t, DefaultConfig().Plausible(d))
	}
}

func TestFilterFallsBackToRawSet(t *testing.T) {
	stretched := ball(10, 10, 60, 20, 0.8) // aspect 3.0
	got := DefaultConfig().Filter([]detection.Detection{stretched})
	require.Len(t, got, 1)
	assert.Equal(t, stretched, got[0])
	assert.False(t, DefaultConfig().Plausible(got[0]))
}

func TestFilterFallbackIsRankedAndCapped(t *testing.T) {
	raw := []detection.Detection{
		ball(0, 0, 5, 5, 0.5),
		ball(0, 0, 6, 6, 0.9),
		ball(0, 0, 7, 7, 0.6),
		ball(0, 0, 8, 8, 0.7),
	}
	got := DefaultConfig().Filter(raw)
	require.Len(t, got, 3)
	assert.Equal(t, 0.9, got[0].Confidence)
	assert.Equal(t, 0.6, got[2].Confidence)
}

func TestFilterEmpty(t *testing.T) {
	assert.Nil(t, DefaultConfig().Filter(nil))
}
