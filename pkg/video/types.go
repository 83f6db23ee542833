package video

import (
	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"gocv.io/x/gocv"
)

//Detector produces the raw proposals of one frame (vision.YOLODetector in production)
type Detector interface {
	Detect(frame gocv.Mat) ([]detection.Proposal, error)
}

//detectedObject is one object line printed by the external detector, e.g.
//{"Class":32,"Confidence":0.91,"Xmin":310,"Ymin":200,"Xmax":338,"Ymax":228}
type detectedObject struct {
	Class      int
	Confidence float32
	Xmin       int
	Ymin       int
	Xmax       int
	Ymax       int
}

func (o detectedObject) proposal() detection.Proposal {
	return detection.Proposal{
		Box:        geom.NewBox(float64(o.Xmin), float64(o.Ymin), float64(o.Xmax), float64(o.Ymax)),
		Confidence: float64(o.Confidence),
		ClassID:    o.Class,
	}
}

//FrameProposals holds the proposals of one frame, frames are numbered from 1
type FrameProposals struct {
	Frame     int
	Proposals []detection.Proposal
}
