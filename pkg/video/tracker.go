package video

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strings"

	"github.com/Yaowwwwww/clipgoal-ai/internal/log"
	"github.com/pkg/errors"
)

//RunDetector executes the configured external object detector (for example a python YOLO script) over the video at videoPath
//and sends the proposals of each frame through framesC as soon as the frame is complete. The command gets "--video <path>" appended.
//Because this function is the only one who writes to the given chan, it closes it before returning.
func RunDetector(ctx context.Context, command, videoPath string, framesC chan<- FrameProposals) error {
	defer close(framesC)

	args := strings.Fields(command)
	if len(args) == 0 {
		return errors.New("RunDetector: empty detector command")
	}
	args = append(args, "--video", videoPath)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "RunDetector: stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "RunDetector: starting %s", args[0])
	}

	parseErr := ParseDetectorOutput(ctx, stdout, framesC)
	//drain whatever is left so the process can exit
	io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		return errors.Wrap(err, "RunDetector: waiting for detector")
	}
	return parseErr
}

//ParseDetectorOutput reads detector output: a "Frame #: <n>" line starts every frame, each object is one JSON line
//starting with {"Class": and "EOF" ends the stream. "FPS: " lines are logs and are skipped.
//Objects with an empty box (the detector prints zeros when it lost the object) are dropped.
func ParseDetectorOutput(ctx context.Context, r io.Reader, framesC chan<- FrameProposals) error {
	var current *FrameProposals
	frames := 0

	flush := func() bool {
		if current == nil {
			return true
		}
		select {
		case framesC <- *current:
			current = nil
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.Contains(line, "Frame #:"):
			if !flush() {
				return ctx.Err()
			}
			frames++
			current = &FrameProposals{Frame: frames}

		case line == "EOF":
			if !flush() {
				return ctx.Err()
			}
			return nil

		case strings.Contains(line, "FPS: "):
			continue

		case strings.HasPrefix(line, "{\"Class\":"):
			if current == nil {
				log.Warn("RunDetector: object before first frame marker, skipping", "line", line)
				continue
			}
			obj := detectedObject{}
			if err := json.Unmarshal([]byte(line), &obj); err != nil {
				log.Warn("RunDetector: bad object line", "line", line, "err", err)
				continue
			}
			p := obj.proposal()
			if err := p.Validate(); err != nil {
				continue
			}
			current.Proposals = append(current.Proposals, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "RunDetector: reading detector output")
	}
	if !flush() {
		return ctx.Err()
	}
	return nil
}
