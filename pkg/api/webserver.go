package api

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/Yaowwwwww/clipgoal-ai/internal/log"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/clips"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/pipeline"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/video"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

//ErrBadRequest marks request data that could not be parsed
var ErrBadRequest = errors.New("api: bad request")

//defaultClipsLimit is the number of clips /api/Clips returns without a limit parameter
const defaultClipsLimit = 20

//Server holds everything the handlers share. Detector, Recorder and Tagger are optional
type Server struct {
	Pipeline *pipeline.Pipeline
	Sessions *pipeline.Registry
	Recorder *clips.Recorder
	Detector video.Detector
	Tagger   *video.Tagger

	SourceDir  string
	ReadyDir   string
	ProdFormat string
	StaticPath string //frontend files, not served when empty

	connections atomic.Int64
}

//detectResponse is the pipeline result of one uploaded frame plus the annotated frame
type detectResponse struct {
	Success bool `json:"success"`
	pipeline.Result
	Session        string      `json:"session"`
	ProcessedImage string      `json:"processed_image"`
	Clip           *clips.Clip `json:"clip,omitempty"`
}

//SetRouter builds the gin engine. ctx bounds the background tagging jobs started by uploads
func (s *Server) SetRouter(ctx context.Context) *gin.Engine {
	r := gin.Default()

	//sessions the registry sweeps or evicts by itself are forgotten by the recorder as well
	s.Sessions.OnDrop(func(ids []string) {
		if s.Recorder != nil {
			for _, id := range ids {
				s.Recorder.Forget(id)
			}
		}
		log.Info("api: dropped sessions", "count", len(ids))
	})

	//serve html pages to client
	if s.StaticPath != "" {
		r.Static("/client", s.StaticPath)
		r.StaticFile("/", path.Join(s.StaticPath, "home_page/dist/index.html"))
	}

	r.GET("/ws", s.stream)

	apiRoutes := r.Group("/api")

	apiRoutes.POST("/Detect", s.detect)

	apiRoutes.GET("/Clips", func(c *gin.Context) {
		limit := defaultClipsLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				fail(c, errors.Wrapf(ErrBadRequest, "limit %q", raw))
				return
			}
			limit = n
		}
		store := s.clipStore()
		if store == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "total_clips": 0, "clips": []clips.Clip{}})
			return
		}

		list, err := store.List(c.Request.Context(), limit)
		if err != nil {
			fail(c, err)
			return
		}
		total, err := store.Count(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		if list == nil {
			list = []clips.Clip{}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "total_clips": total, "clips": list})
	})

	apiRoutes.GET("/Clips/:id", func(c *gin.Context) {
		store := s.clipStore()
		if store == nil {
			fail(c, errors.Wrapf(clips.ErrNotFound, "id %q", c.Param("id")))
			return
		}
		clip, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, clip)
	})

	apiRoutes.DELETE("/Sessions/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := s.Sessions.Delete(id); err != nil {
			fail(c, err)
			return
		}
		if s.Recorder != nil {
			s.Recorder.Forget(id)
		}
		log.Info("api: session deleted", "session", id)
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	apiRoutes.GET("/Health", func(c *gin.Context) {
		saved := 0
		if store := s.clipStore(); store != nil {
			if n, err := store.Count(c.Request.Context()); err == nil {
				saved = n
			} else {
				log.Warn("api: counting clips", "err", err)
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":             "healthy",
			"detector_loaded":    s.Detector != nil,
			"active_sessions":    s.Sessions.Len(),
			"active_connections": s.connections.Load(),
			"saved_clips_count":  saved,
		})
	})

	apiRoutes.GET("/ReadyVideosNames", func(c *gin.Context) {
		if names, err := utils.ListDir(s.ReadyDir); err != nil {
			c.Status(http.StatusInternalServerError)
		} else {
			c.JSON(http.StatusOK, names)
		}
	})

	apiRoutes.GET("/UserUploadsVideosNames", func(c *gin.Context) {
		if names, err := utils.ListDir(s.SourceDir); err != nil {
			c.Status(http.StatusInternalServerError)
		} else {
			c.JSON(http.StatusOK, names)
		}
	})

	apiRoutes.GET("/Play", func(c *gin.Context) {
		videoName := c.Query("name")
		if videoName == "" {
			c.Status(http.StatusNotAcceptable) //missing url parameter
			return
		}

		analyzed := c.Query("analyzed")
		if analyzed != "true" && analyzed != "false" {
			c.Status(http.StatusNotAcceptable) //missing url parameter
			return
		}

		dir := s.SourceDir
		if analyzed == "true" {
			dir = s.ReadyDir
		}
		videoPath := path.Join(dir, filepath.Base(videoName)+"."+s.ProdFormat)

		if _, err := os.Stat(videoPath); err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		c.Header("Content-Type", "video/"+s.ProdFormat)
		http.ServeFile(c.Writer, c.Request, videoPath)
	})

	apiRoutes.POST("/Upload", func(c *gin.Context) {
		fHeader, err := c.FormFile("video")
		if err != nil {
			fail(c, errors.Wrap(ErrBadRequest, err.Error()))
			return
		}
		name := filepath.Base(fHeader.Filename)

		if existNames, err := utils.ListDir(s.SourceDir); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		} else if utils.InSlice(name, existNames) {
			c.Status(http.StatusNotAcceptable)
			return
		}

		log.Info("api/Upload: received new file", "name", name, "bytes", fHeader.Size)

		srcFilePath := path.Join(s.SourceDir, name)
		if err := c.SaveUploadedFile(fHeader, srcFilePath); err != nil {
			log.Error("api/Upload: could not write file", "path", srcFilePath, "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		if err := os.Chmod(srcFilePath, 0444); err != nil {
			log.Warn("api/Upload: could not make file read only", "path", srcFilePath, "err", err)
		}

		if s.Tagger != nil {
			go func() {
				if err := s.Tagger.Tag(ctx, name); err != nil {
					log.Error("api/Upload: tagging failed", "name", name, "err", err)
				}
			}()
		}
		c.Status(http.StatusAccepted)
	})

	return r
}

//detect runs one uploaded picture through the session given in the form, or through a new one
func (s *Server) detect(c *gin.Context) {
	fHeader, err := c.FormFile("image")
	if err != nil {
		fail(c, errors.Wrap(ErrBadRequest, err.Error()))
		return
	}
	data, err := readFormFile(fHeader)
	if err != nil {
		fail(c, err)
		return
	}

	frame, err := video.DecodeImage(data)
	defer frame.Close()
	if err != nil {
		fail(c, err)
		return
	}

	proposals, err := s.proposals(c.PostForm("proposals"), frame)
	if err != nil {
		fail(c, err)
		return
	}

	session, err := s.Sessions.GetOrCreate(c.PostForm("session"))
	if err != nil {
		fail(c, err)
		return
	}

	res, err := session.Process(s.Pipeline, frame, proposals)
	if err != nil {
		fail(c, err)
		return
	}
	clip := s.record(c.Request.Context(), session.ID, res)

	video.DrawOverlay(&frame, res.Overlay())
	processed, err := video.EncodeJPEGDataURL(frame)
	if err != nil {
		fail(c, err)
		return
	}

	log.Info("api: detect", "session", session.ID, "balls", len(res.Balls), "goals", len(res.Goals), "event", res.Event.Type)
	c.JSON(http.StatusOK, detectResponse{
		Success:        true,
		Result:         res,
		Session:        session.ID,
		ProcessedImage: processed,
		Clip:           clip,
	})
}

//proposals decodes the proposals sent with a frame. Without any, the in-process detector is asked when there is one
func (s *Server) proposals(raw string, frame gocv.Mat) ([]detection.Proposal, error) {
	if raw != "" {
		var props []detection.Proposal
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			return nil, errors.Wrapf(ErrBadRequest, "proposals: %v", err)
		}
		for _, p := range props {
			if err := p.Validate(); err != nil {
				return nil, err
			}
		}
		return props, nil
	}
	if s.Detector == nil {
		return nil, nil
	}
	return s.Detector.Detect(frame)
}

//record hands the frame's event to the recorder. Failing to save a clip does not fail the frame
func (s *Server) record(ctx context.Context, session string, res pipeline.Result) *clips.Clip {
	if s.Recorder == nil {
		return nil
	}
	clip, err := s.Recorder.Observe(ctx, session, res.Timestamp, res.Event)
	if err != nil {
		log.Error("api: could not save clip", "session", session, "err", err)
		return nil
	}
	if clip != nil {
		log.Info("api: clip saved", "session", session, "clip", clip.ID, "event", clip.EventType)
	}
	return clip
}

func (s *Server) clipStore() clips.Store {
	if s.Recorder == nil {
		return nil
	}
	return s.Recorder.Store()
}

func readFormFile(fHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fHeader.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "api: opening %s", fHeader.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	return data, errors.Wrapf(err, "api: reading %s", fHeader.Filename)
}
