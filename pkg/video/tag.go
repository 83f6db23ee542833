package video

import (
	"context"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/internal/log"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/clips"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/pipeline"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

//Tagger analyzes uploaded videos frame by frame and writes an annotated copy next to the other ready videos
type Tagger struct {
	Pipeline *pipeline.Pipeline
	Recorder *clips.Recorder //optional, records the events of the video as clips

	//proposals come from Detector when set, otherwise from the external DetectorCommand when set, otherwise
	//only the color fallback of the pipeline finds balls
	Detector        Detector
	DetectorCommand string

	SourceDir  string
	ReadyDir   string
	TempDir    string
	ProdFormat string //extension of the converted output, e.g. "mp4"
}

//Tag reads a video from the source directory, runs every frame through a fresh session and plots the result above it.
//The tagged video is first written as XVID ('.avi' extension) to the temp directory and then converted by ffmpeg
//into the ready directory as '<name>.<ProdFormat>'. srcVideoName should include file's extension ('.mp4', etc.)
func (t *Tagger) Tag(ctx context.Context, srcVideoName string) error {
	base := strings.TrimSuffix(srcVideoName, path.Ext(srcVideoName))
	srcVideoPath := path.Join(t.SourceDir, srcVideoName)
	tmpVideoPath := path.Join(t.TempDir, base+".avi")
	outputVideoPath := path.Join(t.ReadyDir, base+"."+t.ProdFormat)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer os.Remove(tmpVideoPath) //remove '.avi' temp file at the end of this function

	written, events, err := t.annotate(ctx, srcVideoPath, tmpVideoPath, base)
	if err != nil {
		return err
	}
	log.Info("Tag: analyzed video", "video", srcVideoName, "frames", written, "events", events)

	//convert from 'avi' to the production format. example: ffmpeg -y -i game.avi game.mp4
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-i", tmpVideoPath, outputVideoPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "Tag: ffmpeg: %s", lastLine(string(out)))
	}
	return nil
}

//annotate writes the annotated frames of srcVideoPath to tmpVideoPath and returns how many frames and events it saw
func (t *Tagger) annotate(ctx context.Context, srcVideoPath, tmpVideoPath, stream string) (int, int, error) {
	capture, err := gocv.VideoCaptureFile(srcVideoPath)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "Tag: opening %s", srcVideoPath)
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = 25
	}
	width, height := int(capture.Get(gocv.VideoCaptureFrameWidth)), int(capture.Get(gocv.VideoCaptureFrameHeight))

	videoWriter, err := gocv.VideoWriterFile(tmpVideoPath, "XVID", fps, width, height, true)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "Tag: creating %s", tmpVideoPath)
	}
	defer videoWriter.Close()

	proposals := t.proposalSource(ctx, srcVideoPath)
	session := pipeline.NewSession(t.Pipeline.Config().HistoryLength)
	if t.Recorder != nil {
		defer t.Recorder.Forget(stream)
	}

	frameMat := gocv.NewMat()
	defer frameMat.Close()

	start := time.Now()
	frameDuration := time.Duration(float64(time.Second) / fps)
	written, events := 0, 0

	for capture.Read(&frameMat) {
		if frameMat.Empty() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, events, err
		}

		props, err := proposals(frameMat)
		if err != nil {
			log.Warn("Tag: detector failed, frame has no proposals", "video", srcVideoPath, "frame", written+1, "err", err)
		}

		at := start.Add(time.Duration(written) * frameDuration)
		res, err := session.ProcessAt(t.Pipeline, frameMat, props, at)
		if err != nil {
			log.Warn("Tag: dropping proposals of frame", "video", srcVideoPath, "frame", written+1, "err", err)
			if res, err = session.ProcessAt(t.Pipeline, frameMat, nil, at); err != nil {
				return written, events, errors.Wrapf(err, "Tag: frame %d", written+1)
			}
		}

		if res.Event.HasEvent {
			events++
		}
		if t.Recorder != nil {
			if _, err := t.Recorder.Observe(ctx, stream, at, res.Event); err != nil {
				log.Error("Tag: could not save clip", "video", srcVideoPath, "err", err)
			}
		}

		DrawOverlay(&frameMat, res.Overlay())
		if err := videoWriter.Write(frameMat); err != nil {
			return written, events, errors.Wrapf(err, "Tag: writing frame %d", written+1)
		}
		written++
	}
	return written, events, nil
}

//proposalSource picks where the raw proposals of each frame come from
func (t *Tagger) proposalSource(ctx context.Context, srcVideoPath string) func(gocv.Mat) ([]detection.Proposal, error) {
	if t.Detector != nil {
		return t.Detector.Detect
	}

	if t.DetectorCommand == "" {
		return func(gocv.Mat) ([]detection.Proposal, error) { return nil, nil }
	}

	framesC := make(chan FrameProposals, 16)
	go func() {
		if err := RunDetector(ctx, t.DetectorCommand, srcVideoPath, framesC); err != nil && ctx.Err() == nil {
			log.Error("Tag: external detector failed", "video", srcVideoPath, "err", err)
		}
	}()

	return func(gocv.Mat) ([]detection.Proposal, error) {
		select {
		case f, ok := <-framesC:
			if !ok { //detector finished before the video did
				return nil, nil
			}
			return f.Proposals, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
