package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/clips"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/event"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/geom"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/pipeline"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/trajectory"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postClass = 99

func newServer(t *testing.T, registry pipeline.RegistryConfig) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := pipeline.DefaultConfig()
	cfg.PostClassID = postClass
	p, err := pipeline.New(cfg)
	require.NoError(t, err)

	return &Server{
		Pipeline:   p,
		Sessions:   pipeline.NewRegistry(registry, cfg.HistoryLength),
		Recorder:   clips.NewRecorder(clips.NewMemoryStore(10), clips.DefaultConfig()),
		SourceDir:  t.TempDir(),
		ReadyDir:   t.TempDir(),
		ProdFormat: "mp4",
	}
}

//framePNG is a plain grass colored 640x480 picture
func framePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	grass := color.RGBA{40, 128, 40, 255}
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.SetRGBA(x, y, grass)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func ballAt(x, y, conf float64) detection.Proposal {
	return detection.Proposal{Box: geom.NewBox(x-15, y-15, x+15, y+15), Confidence: conf, ClassID: utils.BallClass}
}

//goalScene has two posts forming a goal around (300, 200) and a ball at the given point
func goalScene(x, y float64) []detection.Proposal {
	return []detection.Proposal{
		{Box: geom.NewBox(190, 140, 200, 250), Confidence: 0.9, ClassID: postClass},
		{Box: geom.NewBox(400, 140, 410, 250), Confidence: 0.8, ClassID: postClass},
		ballAt(x, y, 0.96),
	}
}

func proposalsJSON(t *testing.T, props []detection.Proposal) string {
	t.Helper()
	data, err := json.Marshal(props)
	require.NoError(t, err)
	return string(data)
}

func multipartRequest(t *testing.T, target, fileField, fileName string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if file != nil {
		fw, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type detectReply struct {
	Success        bool
	Error          string
	Session        string
	ProcessedImage string `json:"processed_image"`
	Balls          []json.RawMessage
	Goals          []json.RawMessage
	Raw            []json.RawMessage `json:"raw_detections"`
	Event          struct {
		HasEvent bool       `json:"has_event"`
		Type     event.Type `json:"event_type"`
		Distance *float64
	}
	Clip *clips.Clip
}

func serve(t *testing.T, r *gin.Engine, req *http.Request, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func TestDetect(t *testing.T) {
	s := newServer(t, pipeline.DefaultRegistryConfig())
	r := s.SetRouter(context.Background())

	var first detectReply
	w := serve(t, r, multipartRequest(t, "/api/Detect", "image", "frame.png", framePNG(t), map[string]string{
		"proposals": proposalsJSON(t, goalScene(300, 200)),
	}), &first)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.True(t, first.Success)
	assert.NotEmpty(t, first.Session)
	assert.True(t, strings.HasPrefix(first.ProcessedImage, "data:image/jpeg;base64,"))
	assert.Len(t, first.Goals, 1)
	assert.Len(t, first.Balls, 1)
	assert.Len(t, first.Raw, 3)
	assert.True(t, first.Event.HasEvent)
	assert.Equal(t, event.GoalScored, first.Event.Type)
	require.NotNil(t, first.Event.Distance)
	assert.Equal(t, 0.0, *first.Event.Distance)

	require.NotNil(t, first.Clip)
	assert.Equal(t, first.Session, first.Clip.Session)
	assert.Equal(t, 1, first.Clip.FrameCount)

	//same session, inside the clip cooldown
	var second detectReply
	w = serve(t, r, multipartRequest(t, "/api/Detect", "image", "frame.png", framePNG(t), map[string]string{
		"session":   first.Session,
		"proposals": proposalsJSON(t, goalScene(300, 200)),
	}), &second)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.Session, second.Session)
	assert.Equal(t, event.GoalScored, second.Event.Type)
	assert.Nil(t, second.Clip)

	session, err := s.Sessions.Get(first.Session)
	require.NoError(t, err)
	assert.Equal(t, 2, session.Frames())
	assert.Len(t, session.History(), 2)
}

func TestDetectWithoutProposals(t *testing.T) {
	s := newServer(t, pipeline.DefaultRegistryConfig())
	r := s.SetRouter(context.Background())

	var reply detectReply
	w := serve(t, r, multipartRequest(t, "/api/Detect", "image", "frame.png", framePNG(t), nil), &reply)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, reply.Balls)
	assert.Equal(t, event.None, reply.Event.Type)
	assert.Nil(t, reply.Event.Distance)
	assert.Nil(t, reply.Clip)
}

func TestDetectErrors(t *testing.T) {
	s := newServer(t, pipeline.DefaultRegistryConfig())
	r := s.SetRouter(context.Background())
	frame := framePNG(t)
	invalid := []detection.Proposal{{Box: geom.NewBox(50, 50, 40, 60), Confidence: 0.9, ClassID: utils.BallClass}}

	tests := []struct {
		name   string
		file   []byte
		fields map[string]string
		status int
	}{
		{"missing image", nil, nil, http.StatusBadRequest},
		{"not an image", []byte("plain text"), nil, http.StatusBadRequest},
		{"bad proposals json", frame, map[string]string{"proposals": "[{"}, http.StatusBadRequest},
		{"invalid box", frame, map[string]string{"proposals": proposalsJSON(t, invalid)}, http.StatusBadRequest},
		{"unknown session", frame, map[string]string{"session": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reply detectReply
			w := serve(t, r, multipartRequest(t, "/api/Detect", "image", "frame.png", tt.file, tt.fields), &reply)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, reply.Success)
			assert.NotEmpty(t, reply.Error)
		})
	}
	assert.Equal(t, 0, s.Sessions.Len())
}

func TestClipsEndpoints(t *testing.T) {
	s := newServer(t, pipeline.DefaultRegistryConfig())
	r := s.SetRouter(context.Background())

	var reply detectReply
	serve(t, r, multipartRequest(t, "/api/Detect", "image", "frame.png", framePNG(t), map[string]string{
		"proposals": proposalsJSON(t, goalScene(300, 200)),
	}), &reply)
	require.NotNil(t, reply.Clip)

	var list struct {
		Success bool
		Total   int `json:"total_clips"`
		Clips   []clips.Clip
	}
	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Clips?limit=5", nil), &list)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, list.Success)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Clips, 1)
	assert.Equal(t, reply.Clip.ID, list.Clips[0].ID)
	assert.Equal(t, event.GoalScored, list.Clips[0].EventType)

	var clip clips.Clip
	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Clips/"+reply.Clip.ID, nil), &clip)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reply.Session, clip.Session)
	require.NotNil(t, clip.Ball)
	assert.Equal(t, geom.Pt(300, 200), clip.Ball.Center())

	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Clips/unknown", nil), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Clips?limit=abc", nil), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionsAndHealth(t *testing.T) {
	s := newServer(t, pipeline.DefaultRegistryConfig())
	r := s.SetRouter(context.Background())

	session := s.Sessions.Create()

	var health map[string]interface{}
	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Health", nil), &health)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, false, health["detector_loaded"])
	assert.Equal(t, 1.0, health["active_sessions"])
	assert.Equal(t, 0.0, health["active_connections"])
	assert.Equal(t, 0.0, health["saved_clips_count"])

	w = serve(t, r, httptest.NewRequest(http.MethodDelete, "/api/Sessions/"+session.ID, nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.Sessions.Len())

	w = serve(t, r, httptest.NewRequest(http.MethodDelete, "/api/Sessions/"+session.ID, nil), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadAndPlay(t *testing.T) {
	s := newServer(t, pipeline.DefaultRegistryConfig())
	r := s.SetRouter(context.Background())
	content := []byte("not really a video")

	w := serve(t, r, multipartRequest(t, "/api/Upload", "video", "game.mp4", content, nil), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	saved, err := os.ReadFile(filepath.Join(s.SourceDir, "game.mp4"))
	require.NoError(t, err)
	assert.Equal(t, content, saved)

	w = serve(t, r, multipartRequest(t, "/api/Upload", "video", "game.mp4", content, nil), nil)
	assert.Equal(t, http.StatusNotAcceptable, w.Code)

	var names []string
	serve(t, r, httptest.NewRequest(http.MethodGet, "/api/UserUploadsVideosNames", nil), &names)
	assert.Equal(t, []string{"game.mp4"}, names)
	serve(t, r, httptest.NewRequest(http.MethodGet, "/api/ReadyVideosNames", nil), &names)
	assert.Empty(t, names)

	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Play?name=game&analyzed=false", nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())

	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Play?name=game&analyzed=true", nil), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Play?name=game", nil), nil)
	assert.Equal(t, http.StatusNotAcceptable, w.Code)
	w = serve(t, r, httptest.NewRequest(http.MethodGet, "/api/Play?analyzed=true", nil), nil)
	assert.Equal(t, http.StatusNotAcceptable, w.Code)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestStream(t *testing.T) {
	s := newServer(t, pipeline.DefaultRegistryConfig())
	srv := httptest.NewServer(s.SetRouter(context.Background()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)

	frame := "data:image/png;base64," + base64.StdEncoding.EncodeToString(framePNG(t))

	//a bad message is answered and the connection stays usable
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var resp streamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)

	//ball rolling towards the goal, never reaching it
	for i := 0; i < 7; i++ {
		req := streamRequest{Image: frame, Proposals: goalScene(100.04+float64(i)*10, 200)}
		require.NoError(t, conn.WriteJSON(req))
		resp = streamResponse{}
		require.NoError(t, conn.ReadJSON(&resp))
		require.True(t, resp.Success, resp.Error)
	}

	require.Len(t, resp.Balls, 1)
	assert.Equal(t, geom.Pt(160, 200), resp.Balls[0].Center)
	assert.Equal(t, geom.NewBox(145, 185, 175, 215), resp.Balls[0].Box)
	assert.Equal(t, 0.96, resp.Balls[0].Confidence)
	assert.Equal(t, detection.MethodModel, resp.Balls[0].Method)
	require.Len(t, resp.Goals, 1)
	assert.Equal(t, event.None, resp.Event.Type)
	assert.Nil(t, resp.Event.Distance)
	assert.Nil(t, resp.Clip)

	require.NotNil(t, resp.Trajectory)
	require.Len(t, resp.Trajectory.Positions, utils.StreamTrajectoryPoints)
	assert.Equal(t, geom.Pt(120, 200), resp.Trajectory.Positions[0])
	assert.Equal(t, geom.Pt(160, 200), resp.Trajectory.Positions[4])

	var health map[string]interface{}
	hr, err := http.Get(srv.URL + "/api/Health")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(hr.Body).Decode(&health))
	hr.Body.Close()
	assert.Equal(t, 1.0, health["active_connections"])
	assert.Equal(t, 1.0, health["active_sessions"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return s.Sessions.Len() == 0 && s.connections.Load() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamGoalRecordsClip(t *testing.T) {
	s := newServer(t, pipeline.DefaultRegistryConfig())
	srv := httptest.NewServer(s.SetRouter(context.Background()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(streamRequest{
		Image:     base64.StdEncoding.EncodeToString(framePNG(t)),
		Proposals: goalScene(300, 200),
	}))
	var resp streamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	require.True(t, resp.Success, resp.Error)

	assert.True(t, resp.Event.HasEvent)
	assert.Equal(t, event.GoalScored, resp.Event.Type)
	require.NotNil(t, resp.Event.Distance)
	assert.Equal(t, 0.0, *resp.Event.Distance)
	require.NotNil(t, resp.Clip)
	assert.Nil(t, resp.Trajectory)

	n, err := s.Recorder.Store().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStreamEvictsLeastRecentSession(t *testing.T) {
	s := newServer(t, pipeline.RegistryConfig{Limit: 1, IdleTimeout: time.Hour})
	r := s.SetRouter(context.Background())
	srv := httptest.NewServer(r)
	defer srv.Close()

	var reply detectReply
	serve(t, r, multipartRequest(t, "/api/Detect", "image", "frame.png", framePNG(t), map[string]string{
		"proposals": proposalsJSON(t, goalScene(300, 200)),
	}), &reply)
	require.True(t, reply.Success, reply.Error)
	require.Equal(t, 1, s.Recorder.Len())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, err = s.Sessions.Get(reply.Session)
	assert.True(t, errors.Is(err, pipeline.ErrSessionNotFound))
	assert.Equal(t, 1, s.Sessions.Len())
	assert.Equal(t, 0, s.Recorder.Len())
}

func TestDetectWithoutSessionIsNeverRefused(t *testing.T) {
	const limit = 5
	s := newServer(t, pipeline.RegistryConfig{Limit: limit, IdleTimeout: time.Hour})
	r := s.SetRouter(context.Background())

	for i := 0; i < limit*3; i++ {
		var reply detectReply
		w := serve(t, r, multipartRequest(t, "/api/Detect", "image", "frame.png", framePNG(t), map[string]string{
			"proposals": proposalsJSON(t, []detection.Proposal{ballAt(100, 200, 0.9)}),
		}), &reply)
		require.Equal(t, http.StatusOK, w.Code, "request %d: %s", i+1, reply.Error)
		assert.NotEmpty(t, reply.Session)
	}
	assert.Equal(t, limit, s.Sessions.Len())
	assert.LessOrEqual(t, s.Recorder.Len(), limit)
}

func TestCompact(t *testing.T) {
	balls := make([]detection.Detection, 5)
	for i := range balls {
		balls[i] = detection.Detection{Box: geom.NewBox(10.123, 20.456, 40.789, 50.001), Confidence: 0.98765, ClassID: utils.BallClass}
	}
	predicted := geom.Pt(1.26, 2.24)
	res := pipeline.Result{
		Balls: balls,
		Event: event.Result{Type: event.Contact, HasEvent: true, Distance: 3.14159},
		Trajectory: &trajectory.Trajectory{
			Positions: []geom.Point{geom.Pt(0, 0), geom.Pt(1.04, 1.06)},
			Speed:     12.3456,
			Predicted: &predicted,
		},
		Timestamp: time.Unix(1700000000, 250*int64(time.Millisecond)),
	}

	got := compact(res)
	assert.True(t, got.Success)
	require.Len(t, got.Balls, utils.StreamMaxBalls)
	assert.Equal(t, geom.NewBox(10.1, 20.5, 40.8, 50), got.Balls[0].Box)
	assert.Equal(t, 0.99, got.Balls[0].Confidence)
	assert.Empty(t, got.Goals)
	require.NotNil(t, got.Event.Distance)
	assert.Equal(t, 3.1, *got.Event.Distance)
	assert.Equal(t, []geom.Point{geom.Pt(0, 0), geom.Pt(1, 1.1)}, got.Trajectory.Positions)
	assert.Equal(t, 12.35, got.Trajectory.Speed)
	assert.Equal(t, geom.Pt(1.3, 2.2), *got.Trajectory.Predicted)
	assert.Equal(t, 1700000000.25, got.Timestamp)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(errors.Wrap(ErrBadRequest, "x")))
	assert.Equal(t, http.StatusBadRequest, statusOf(errors.Wrap(pipeline.ErrEmptyFrame, "x")))
	assert.Equal(t, http.StatusBadRequest, statusOf(errors.Wrap(detection.ErrInvalidConfidence, "x")))
	assert.Equal(t, http.StatusNotFound, statusOf(errors.Wrap(clips.ErrNotFound, "x")))
	assert.Equal(t, http.StatusNotFound, statusOf(errors.Wrap(pipeline.ErrSessionNotFound, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
}
