package vision

import (
	"image"
	"os"
	"sync"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// YOLOConfig configures the ONNX detector. An empty ModelPath disables it.
type YOLOConfig struct {
	ModelPath           string  `mapstructure:"model"`
	InputSize           int     `mapstructure:"input_size"`
	ConfidenceThreshold float32 `mapstructure:"confidence"`
	NMSThreshold        float32 `mapstructure:"nms"`
}

func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		InputSize:           640,
		ConfidenceThreshold: 0.3,
		NMSThreshold:        0.4,
	}
}

// YOLODetector runs a YOLOv8 style ONNX export (output [1, 4+classes,
// anchors]) and returns its boxes as raw proposals in frame coordinates.
type YOLODetector struct {
	mu     sync.Mutex
	net    gocv.Net
	config YOLOConfig
}

// NewYOLODetector loads the model at cfg.ModelPath.
func NewYOLODetector(cfg YOLOConfig) (*YOLODetector, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("vision: no model path configured")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "vision: model %s", cfg.ModelPath)
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultYOLOConfig().InputSize
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, errors.Errorf("vision: could not load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{net: net, config: cfg}, nil
}

// Detect runs the network on a BGR frame. Calls are serialized since a
// gocv.Net is not safe for concurrent use.
func (d *YOLODetector) Detect(frame gocv.Mat) ([]detection.Proposal, error) {
	if frame.Empty() {
		return nil, errors.New("vision: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Pt(d.config.InputSize, d.config.InputSize)
	blob := gocv.BlobFromImage(frame, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, errors.Errorf("vision: unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "vision: reading model output")
	}

	scaleX := float32(frame.Cols()) / float32(d.config.InputSize)
	scaleY := float32(frame.Rows()) / float32(d.config.InputSize)
	raw := DecodeOutput(data, dims[1], dims[2], scaleX, scaleY, d.config.ConfidenceThreshold)
	return SuppressPerClass(raw, d.config.ConfidenceThreshold, d.config.NMSThreshold), nil
}

// SuppressPerClass runs non-maximum suppression separately for every class id,
// so a player box never hides the ball it overlaps. Survivors keep their input order.
func SuppressPerClass(props []detection.Proposal, scoreThreshold, nmsThreshold float32) []detection.Proposal {
	if len(props) == 0 {
		return nil
	}

	byClass := make(map[int][]int)
	for i, p := range props {
		byClass[p.ClassID] = append(byClass[p.ClassID], i)
	}

	kept := make([]bool, len(props))
	for _, idx := range byClass {
		boxes := make([]image.Rectangle, len(idx))
		scores := make([]float32, len(idx))
		for j, i := range idx {
			boxes[j] = props[i].Box.Rect()
			scores[j] = float32(props[i].Confidence)
		}
		for _, j := range gocv.NMSBoxes(boxes, scores, scoreThreshold, nmsThreshold) {
			kept[idx[j]] = true
		}
	}

	var out []detection.Proposal
	for i, p := range props {
		if kept[i] {
			out = append(out, p)
		}
	}
	return out
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// DecodeOutput reads a channel-major [attrs x anchors] tensor where each
// anchor holds cx, cy, w, h followed by one score per class. Anchors whose
// best score is below threshold and boxes that end up degenerate are dropped.
// Coordinates are scaled back to the frame.
func DecodeOutput(data []float32, attrs, anchors int, scaleX, scaleY, threshold float32) []detection.Proposal {
	if attrs <= 4 || anchors <= 0 || len(data) < attrs*anchors {
		return nil
	}

	var out []detection.Proposal
	for i := 0; i < anchors; i++ {
		best, class := float32(0), -1
		for c := 4; c < attrs; c++ {
			if s := data[c*anchors+i]; s > best {
				best, class = s, c-4
			}
		}
		if class < 0 || best < threshold {
			continue
		}

		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		box := geom.NewBox(
			float64((cx-w/2)*scaleX),
			float64((cy-h/2)*scaleY),
			float64((cx+w/2)*scaleX),
			float64((cy+h/2)*scaleY),
		)
		if !box.Valid() {
			continue
		}
		out = append(out, detection.Proposal{Box: box, Confidence: float64(best), ClassID: class})
	}
	return out
}
