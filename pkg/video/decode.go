package video

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrBadImage is returned for bytes that do not decode to an image.
var ErrBadImage = errors.New("video: undecodable image")

//DecodeImage decodes JPEG/PNG/GIF/BMP/TIFF bytes into a BGR Mat, rotating phone pictures upright according to their EXIF orientation.
//The caller closes the returned Mat
func DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), errors.Wrap(ErrBadImage, "empty input")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return gocv.NewMat(), errors.Wrap(ErrBadImage, err.Error())
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "video: converting image")
	}
	return mat, nil
}

//DecodeBase64Image accepts plain base64 or a "data:image/...;base64," URL, as sent by browsers
func DecodeBase64Image(s string) (gocv.Mat, error) {
	if i := strings.Index(s, ","); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return gocv.NewMat(), errors.Wrap(ErrBadImage, err.Error())
	}
	return DecodeImage(data)
}

//EncodeJPEGDataURL encodes the frame as a JPEG data URL
func EncodeJPEGDataURL(frame gocv.Mat) (string, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return "", errors.Wrap(err, "video: encoding jpeg")
	}
	defer buf.Close()

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
