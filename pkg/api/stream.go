package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"

	"github.com/Yaowwwwww/clipgoal-ai/internal/log"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/clips"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/event"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/pipeline"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/trajectory"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/video"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 14,
	CheckOrigin:     func(*http.Request) bool { return true }, //the frontend may be served from another origin
}

//streamRequest is one frame sent over the websocket
type streamRequest struct {
	Image     string               `json:"image"` //base64 or data URL
	Proposals []detection.Proposal `json:"proposals"`
}

type compactDetection struct {
	Box        geom.Box         `json:"bbox"`
	Center     geom.Point       `json:"center"`
	Confidence float64          `json:"confidence"`
	Method     detection.Method `json:"method"`
}

type compactEvent struct {
	HasEvent bool       `json:"has_event"`
	Type     event.Type `json:"event_type"`
	Distance *float64   `json:"distance"`
}

type compactTrajectory struct {
	Positions []geom.Point `json:"positions"`
	Speed     float64      `json:"speed"`
	Predicted *geom.Point  `json:"predicted,omitempty"`
}

//streamResponse is the reply to every websocket frame, kept small for frame rate
type streamResponse struct {
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	Balls      []compactDetection `json:"balls"`
	Goals      []compactDetection `json:"goals"`
	Event      compactEvent       `json:"event"`
	Trajectory *compactTrajectory `json:"trajectory"`
	Clip       *clips.Clip        `json:"clip,omitempty"`
	Timestamp  float64            `json:"timestamp"`
}

//stream serves GET /ws: every connection gets its own session, which is dropped when the connection closes
func (s *Server) stream(c *gin.Context) {
	session := s.Sessions.Create()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		//the upgrader already answered the client
		log.Warn("api/ws: upgrade failed", "err", err)
		s.Sessions.Delete(session.ID)
		return
	}

	s.connections.Add(1)
	log.Info("api/ws: connected", "session", session.ID, "remote", c.Request.RemoteAddr)
	defer func() {
		conn.Close()
		s.connections.Add(-1)
		s.Sessions.Delete(session.ID)
		if s.Recorder != nil {
			s.Recorder.Forget(session.ID)
		}
		log.Info("api/ws: disconnected", "session", session.ID, "frames", session.Frames())
	}()

	ctx := c.Request.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("api/ws: read failed", "session", session.ID, "err", err)
			}
			return
		}

		resp := s.streamFrame(ctx, session, msg)
		if err := conn.WriteJSON(resp); err != nil {
			log.Warn("api/ws: write failed", "session", session.ID, "err", err)
			return
		}
	}
}

//streamFrame processes one websocket message. Bad frames are answered with an error and keep the connection open
func (s *Server) streamFrame(ctx context.Context, session *pipeline.Session, msg []byte) streamResponse {
	var req streamRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return streamError(errors.Wrapf(ErrBadRequest, "message: %v", err))
	}

	frame, err := video.DecodeBase64Image(req.Image)
	defer frame.Close()
	if err != nil {
		return streamError(err)
	}

	proposals := req.Proposals
	if proposals == nil && s.Detector != nil {
		if proposals, err = s.Detector.Detect(frame); err != nil {
			return streamError(err)
		}
	}

	res, err := session.Process(s.Pipeline, frame, proposals)
	if err != nil {
		return streamError(err)
	}

	resp := compact(res)
	resp.Clip = s.record(ctx, session.ID, res)
	return resp
}

func streamError(err error) streamResponse {
	return streamResponse{Error: err.Error(), Balls: []compactDetection{}, Goals: []compactDetection{}}
}

//compact rounds coordinates to 0.1 px and confidences to 0.01, and keeps the best balls and the last trajectory points only
func compact(res pipeline.Result) streamResponse {
	resp := streamResponse{
		Success:   true,
		Balls:     make([]compactDetection, 0, utils.StreamMaxBalls),
		Goals:     make([]compactDetection, 0, len(res.Goals)),
		Event:     compactEvent{HasEvent: res.Event.HasEvent, Type: res.Event.Type},
		Timestamp: float64(res.Timestamp.UnixMilli()) / 1000,
	}

	for _, b := range utils.FirstN(res.Balls, utils.StreamMaxBalls) {
		resp.Balls = append(resp.Balls, compactOf(b))
	}
	for _, g := range res.Goals {
		resp.Goals = append(resp.Goals, compactOf(g.Detection))
	}

	if d := res.Event.Distance; !math.IsInf(d, 0) && !math.IsNaN(d) {
		d = geom.RoundTo(d, 1)
		resp.Event.Distance = &d
	}

	resp.Trajectory = compactTrajectoryOf(res.Trajectory)
	return resp
}

func compactOf(d detection.Detection) compactDetection {
	return compactDetection{
		Box:        d.Box.Round(1),
		Center:     d.Center().Round(1),
		Confidence: geom.RoundTo(d.Confidence, 2),
		Method:     d.Method,
	}
}

func compactTrajectoryOf(t *trajectory.Trajectory) *compactTrajectory {
	if t == nil {
		return nil
	}

	recent := utils.LastN(t.Positions, utils.StreamTrajectoryPoints)
	ct := &compactTrajectory{
		Positions: make([]geom.Point, len(recent)),
		Speed:     geom.RoundTo(t.Speed, 2),
	}
	for i, p := range recent {
		ct.Positions[i] = p.Round(1)
	}
	if t.Predicted != nil {
		p := t.Predicted.Round(1)
		ct.Predicted = &p
	}
	return ct
}
