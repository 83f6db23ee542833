// Package vision holds the detectors that look at pixels directly: an HSV
// color ball detector and an ONNX object detector run through OpenCV DNN.
package vision

import (
	"image"
	"math"
	"sort"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// HSVRange is an inclusive OpenCV HSV range (H in [0,180], S and V in [0,255]).
type HSVRange struct {
	Lower [3]float64
	Upper [3]float64
}

// BallColors are the ball colors the detector knows about.
var BallColors = map[string]HSVRange{
	"white":  {Lower: [3]float64{0, 0, 180}, Upper: [3]float64{180, 40, 255}},
	"black":  {Lower: [3]float64{0, 0, 0}, Upper: [3]float64{180, 255, 80}},
	"orange": {Lower: [3]float64{5, 80, 80}, Upper: [3]float64{25, 255, 255}},
	"red":    {Lower: [3]float64{160, 120, 120}, Upper: [3]float64{180, 255, 255}},
	"blue":   {Lower: [3]float64{100, 120, 120}, Upper: [3]float64{130, 255, 255}},
	"green":  {Lower: [3]float64{40, 120, 120}, Upper: [3]float64{80, 255, 255}},
	"yellow": {Lower: [3]float64{20, 120, 120}, Upper: [3]float64{40, 255, 255}},
	"purple": {Lower: [3]float64{130, 120, 120}, Upper: [3]float64{160, 255, 255}},
}

// ErrUnknownColor is returned for a color missing from BallColors.
var ErrUnknownColor = errors.New("vision: unknown ball color")

// ColorConfig holds the mask and shape limits of the color detector. Area
// and aspect bounds are exclusive.
type ColorConfig struct {
	Colors         []string `mapstructure:"colors"`
	KernelSize     int      `mapstructure:"kernel_size"`
	MinArea        float64  `mapstructure:"min_area"`
	MaxArea        float64  `mapstructure:"max_area"`
	MinCircularity float64  `mapstructure:"min_circularity"`
	MinAspectRatio float64  `mapstructure:"min_aspect_ratio"`
	MaxAspectRatio float64  `mapstructure:"max_aspect_ratio"`
}

func DefaultColorConfig() ColorConfig {
	return ColorConfig{
		Colors:         []string{"white", "black"},
		KernelSize:     5,
		MinArea:        100,
		MaxArea:        8000,
		MinCircularity: 0.4,
		MinAspectRatio: 0.5,
		MaxAspectRatio: 2.0,
	}
}

// Validate checks every configured color is known.
func (c ColorConfig) Validate() error {
	for _, name := range c.Colors {
		if _, ok := BallColors[name]; !ok {
			return errors.Wrapf(ErrUnknownColor, "%q", name)
		}
	}
	if c.KernelSize <= 0 {
		return errors.Errorf("vision: kernel size must be positive, got %d", c.KernelSize)
	}
	return nil
}

// Circularity is 4πA/P², 1 for a perfect circle. It is 0 for a zero
// perimeter.
func Circularity(area, perimeter float64) float64 {
	if perimeter <= 0 {
		return 0
	}
	return 4 * math.Pi * area / (perimeter * perimeter)
}

// Blob is a measured connected region of a color mask.
type Blob struct {
	Area      float64
	Perimeter float64
	Box       geom.Box
}

// Accept applies the area, circularity and aspect checks and returns the
// confidence of a blob, its circularity capped at 1.
func (c ColorConfig) Accept(b Blob) (float64, bool) {
	if b.Area <= c.MinArea || b.Area >= c.MaxArea {
		return 0, false
	}
	circ := Circularity(b.Area, b.Perimeter)
	if circ <= c.MinCircularity {
		return 0, false
	}
	ar := b.Box.AspectRatio()
	if ar <= c.MinAspectRatio || ar >= c.MaxAspectRatio {
		return 0, false
	}
	return math.Min(circ, 1), true
}

// ColorBallDetector finds round blobs of the configured ball colors. It is
// used when the object detector reports no ball.
type ColorBallDetector struct {
	Config ColorConfig
}

// NewColorBallDetector validates cfg.
func NewColorBallDetector(cfg ColorConfig) (*ColorBallDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ColorBallDetector{Config: cfg}, nil
}

// Detect returns one detection per accepted blob, strongest first. The
// detections carry the ball class so the ball filter treats them like
// model output.
func (d *ColorBallDetector) Detect(frame gocv.Mat) []detection.Detection {
	if frame.Empty() || frame.Channels() != 3 {
		return nil
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(d.Config.KernelSize, d.Config.KernelSize))
	defer kernel.Close()

	var out []detection.Detection
	for _, name := range d.Config.Colors {
		rng, ok := BallColors[name]
		if !ok {
			continue
		}
		for _, b := range blobs(hsv, rng, kernel) {
			conf, ok := d.Config.Accept(b)
			if !ok {
				continue
			}
			out = append(out, detection.Detection{
				Box:        b.Box,
				Confidence: conf,
				ClassID:    utils.BallClass,
				Label:      name + "_ball",
				Method:     detection.MethodColor,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// blobs masks hsv to rng, cleans the mask with an open and a close and
// measures every outer contour.
func blobs(hsv gocv.Mat, rng HSVRange, kernel gocv.Mat) []Blob {
	mask := gocv.NewMat()
	defer mask.Close()
	lower := gocv.NewScalar(rng.Lower[0], rng.Lower[1], rng.Lower[2], 0)
	upper := gocv.NewScalar(rng.Upper[0], rng.Upper[1], rng.Upper[2], 0)
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(mask, &opened, gocv.MorphOpen, kernel)
	cleaned := gocv.NewMat()
	defer cleaned.Close()
	gocv.MorphologyEx(opened, &cleaned, gocv.MorphClose, kernel)

	contours := gocv.FindContours(cleaned, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	out := make([]Blob, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		out = append(out, Blob{
			Area:      gocv.ContourArea(c),
			Perimeter: gocv.ArcLength(c, true),
			Box:       geom.FromRect(gocv.BoundingRect(c)),
		})
	}
	return out
}
