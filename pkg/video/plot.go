package video

import (
	"fmt"
	"image"
	"image/color"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/pipeline"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	colorful "github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

//goalFillAlpha is the opacity of the fill drawn inside goal boxes
const goalFillAlpha = 0.15

var (
	whiteRGB      = color.RGBA{255, 255, 255, 0}
	trajectoryRGB = color.RGBA{0, 255, 255, 0}
)

//hue of each detection method on the overlay. Goal methods stay around red so goals read as goals.
var methodHues = map[detection.Method]float64{
	detection.MethodModel:   120, //green
	detection.MethodColor:   60,  //yellow
	detection.MethodEdge:    0,   //red
	detection.MethodContour: 340,
	detection.MethodCorner:  15,
}

//MethodColor returns the overlay color of a detection method
func MethodColor(m detection.Method) color.RGBA {
	hue, ok := methodHues[m]
	if !ok {
		return whiteRGB
	}
	r, g, b := colorful.Hsv(hue, 1, 1).RGB255()
	return color.RGBA{r, g, b, 0}
}

//eventColor is green for a goal and orange for a contact
func eventColor(text string) color.RGBA {
	hue := 30.0
	if text == utils.GoalScoredText {
		hue = 120
	}
	r, g, b := colorful.Hsv(hue, 1, 1).RGB255()
	return color.RGBA{r, g, b, 0}
}

//DrawOverlay plots the goals, balls, trajectory, event banner and counters of one processed frame on it
func DrawOverlay(frame *gocv.Mat, o pipeline.Overlay) {
	if frame.Empty() {
		return
	}

	plotGoals(frame, o.Goals)

	for i := 1; i < len(o.Trajectory); i++ {
		gocv.Line(frame, o.Trajectory[i-1].Image(), o.Trajectory[i].Image(), trajectoryRGB, 2)
	}

	for _, ball := range o.Balls {
		plotBall(frame, ball)
	}

	if o.EventText != "" {
		gocv.PutText(frame, o.EventText, image.Pt(50, 50), gocv.FontHersheySimplex, 1.5, eventColor(o.EventText), 3)
	}

	bottom := frame.Rows()
	gocv.PutText(frame, fmt.Sprintf("Balls: %d", len(o.Balls)), image.Pt(10, bottom-40), gocv.FontHersheySimplex, 0.7, whiteRGB, 2)
	gocv.PutText(frame, fmt.Sprintf("Goals: %d", len(o.Goals)), image.Pt(10, bottom-15), gocv.FontHersheySimplex, 0.7, whiteRGB, 2)
}

//plotGoals fills every goal box translucently, then draws its outline, corners and label
func plotGoals(frame *gocv.Mat, goals []detection.GoalCandidate) {
	if len(goals) == 0 {
		return
	}

	fill := frame.Clone()
	defer fill.Close()
	for _, g := range goals {
		gocv.Rectangle(&fill, g.Box.Rect(), MethodColor(g.Method), -1) //thickness -1 == filled rectangle
	}
	gocv.AddWeighted(fill, goalFillAlpha, *frame, 1-goalFillAlpha, 0, frame)

	for _, g := range goals {
		c := MethodColor(g.Method)
		gocv.Rectangle(frame, g.Box.Rect(), c, 4)
		plotPolygon(frame, g.Polygon, c)

		label := fmt.Sprintf("Goal %.2f (%s)", g.Confidence, g.Method)
		gocv.PutText(frame, label, labelPoint(g.Box), gocv.FontHersheySimplex, 0.6, c, 2)
	}
}

func plotBall(frame *gocv.Mat, ball detection.Detection) {
	c := MethodColor(ball.Method)
	gocv.Rectangle(frame, ball.Box.Rect(), c, 3)
	gocv.Circle(frame, ball.Center().Image(), 8, c, -1)

	label := fmt.Sprintf("Ball %.2f (%s)", ball.Confidence, ball.Method)
	gocv.PutText(frame, label, labelPoint(ball.Box), gocv.FontHersheySimplex, 0.6, c, 2)
}

func plotPolygon(frame *gocv.Mat, poly []geom.Point, c color.RGBA) {
	if len(poly) < 2 {
		return
	}
	for i := range poly {
		next := poly[(i+1)%len(poly)]
		gocv.Line(frame, poly[i].Image(), next.Image(), c, 1)
	}
}

//labelPoint puts text just above the box, or inside it at the top of the frame
func labelPoint(b geom.Box) image.Point {
	p := image.Pt(int(b.X1), int(b.Y1)-8)
	if p.Y < 15 {
		p.Y = int(b.Y1) + 20
	}
	return p
}
