// Package detection defines the values passed between the stages of the
// clipgoal pipeline: raw model proposals, detections with provenance, and
// goal candidates.
package detection

import (
	"encoding/json"
	"fmt"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/pkg/errors"
)

// ErrInvalidBox is returned for proposals whose box has no positive area.
var ErrInvalidBox = errors.New("detection: invalid box")

// ErrInvalidConfidence is returned for proposals whose confidence is outside [0, 1].
var ErrInvalidConfidence = errors.New("detection: confidence outside [0, 1]")

// Method tells which stage produced a detection.
type Method int

const (
	MethodModel Method = iota
	MethodEdge
	MethodContour
	MethodCorner
	MethodColor
)

var methodNames = [...]string{
	MethodModel:   "model",
	MethodEdge:    "edge",
	MethodContour: "contour",
	MethodCorner:  "corner",
	MethodColor:   "color",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod is the inverse of Method.String.
func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if name == s {
			return Method(i), nil
		}
	}
	return 0, errors.Errorf("detection: unknown method %q", s)
}

// MarshalText writes the method name, so JSON carries "edge" rather than a number.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Proposal is one raw box from the object-detection model.
type Proposal struct {
	Box        geom.Box `json:"bbox"`
	Confidence float64  `json:"confidence"`
	ClassID    int      `json:"class_id"`
}

// Validate rejects proposals that cannot enter the pipeline.
func (p Proposal) Validate() error {
	if !p.Box.Valid() {
		return errors.Wrapf(ErrInvalidBox, "bbox %v", [4]float64{p.Box.X1, p.Box.Y1, p.Box.X2, p.Box.Y2})
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return errors.Wrapf(ErrInvalidConfidence, "confidence %v", p.Confidence)
	}
	return nil
}

// Detection is a located object with its provenance. Values are never
// modified after construction.
type Detection struct {
	Box        geom.Box `json:"bbox"`
	Confidence float64  `json:"confidence"`
	ClassID    int      `json:"class_id"`
	Label      string   `json:"class_name"`
	Method     Method   `json:"detection_method"`
}

// Center is the midpoint of the detection box.
func (d Detection) Center() geom.Point {
	return d.Box.Center()
}

// IsBall reports whether the detection carries the sports ball class.
func (d Detection) IsBall() bool {
	return d.ClassID == utils.BallClass
}

// MarshalJSON adds the derived center to the encoded detection.
func (d Detection) MarshalJSON() ([]byte, error) {
	type plain Detection
	return json.Marshal(struct {
		plain
		Center geom.Point `json:"center"`
	}{plain(d), d.Center()})
}

// GoalCandidate is a goal region with an optional outline polygon.
type GoalCandidate struct {
	Detection
	Polygon []geom.Point `json:"corners,omitempty"`
}

// MarshalJSON keeps the polygon next to the promoted detection fields.
func (g GoalCandidate) MarshalJSON() ([]byte, error) {
	type plain Detection
	return json.Marshal(struct {
		plain
		Center  geom.Point   `json:"center"`
		Polygon []geom.Point `json:"corners,omitempty"`
	}{plain(g.Detection), g.Center(), g.Polygon})
}

// NewGoal builds a goal candidate produced by the given method.
func NewGoal(box geom.Box, confidence float64, method Method, polygon []geom.Point) GoalCandidate {
	return GoalCandidate{
		Detection: Detection{
			Box:        box,
			Confidence: confidence,
			ClassID:    -1,
			Label:      "goal",
			Method:     method,
		},
		Polygon: polygon,
	}
}

// FromProposal maps a validated proposal to a model detection.
func FromProposal(p Proposal) Detection {
	return Detection{
		Box:        p.Box,
		Confidence: p.Confidence,
		ClassID:    p.ClassID,
		Label:      Label(p.ClassID),
		Method:     MethodModel,
	}
}

// FromProposals validates every proposal and converts them in order. The
// first invalid proposal aborts the conversion.
func FromProposals(props []Proposal) ([]Detection, error) {
	out := make([]Detection, 0, len(props))
	for i, p := range props {
		if err := p.Validate(); err != nil {
			return nil, errors.Wrapf(err, "proposal %d", i)
		}
		out = append(out, FromProposal(p))
	}
	return out, nil
}

// Best returns the detection with the highest confidence. Earlier entries win
// ties.
func Best(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}
