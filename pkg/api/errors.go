package api

import (
	"net/http"

	"github.com/Yaowwwwww/clipgoal-ai/internal/log"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/clips"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/pipeline"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/video"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

//statusOf maps an error returned while handling a request to its http status
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, video.ErrBadImage),
		errors.Is(err, pipeline.ErrEmptyFrame),
		errors.Is(err, detection.ErrInvalidBox),
		errors.Is(err, detection.ErrInvalidConfidence):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSessionNotFound), errors.Is(err, clips.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

//fail aborts the request with {"success": false, "error": ...}
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error("api: request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": err.Error()})
}
