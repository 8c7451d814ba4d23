package images

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	// ErrInvalidPayload is returned when an inbound payload is empty or is not valid base64.
	ErrInvalidPayload = errors.New("invalid image payload")
	// ErrUndecodable is returned when the bytes (or file) do not decode into an image.
	ErrUndecodable = errors.New("image could not be decoded")
)

// Source is an image that has not been decoded yet: either a file on disk or the raw
// bytes of an encoded image.
type Source struct {
	// Path is the filesystem path of the image, if the source is a file.
	Path string
	// Data is the encoded image, if the source came from a payload.
	Data []byte
}

// FromFile returns a Source that reads the image from the given path.
func FromFile(path string) Source {
	return Source{Path: path}
}

// FromBytes returns a Source over already encoded image bytes.
func FromBytes(data []byte) Source {
	return Source{Data: data}
}

// FromBase64 decodes a base64 payload into a Source.
//
// The payload is either a data URI ("data:image/jpeg;base64,<payload>") or a bare base64
// string. Everything up to and including the first comma is treated as the data URI prefix.
//
// Arguments:
//   - payload: The base64 (optionally data URI prefixed) image.
//
// Returns:
//   - Source: A source holding the decoded bytes.
//   - error: ErrInvalidPayload when the payload is empty or not base64.
func FromBase64(payload string) (Source, error) {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	payload = strings.Join(strings.Fields(payload), "")
	if payload == "" {
		return Source{}, errors.Wrap(ErrInvalidPayload, "empty payload")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return Source{}, errors.Wrapf(ErrInvalidPayload, "base64: %v", err)
		}
	}
	if len(data) == 0 {
		return Source{}, errors.Wrap(ErrInvalidPayload, "empty payload")
	}

	return Source{Data: data}, nil
}

// Format reports the encoded format of the source, reading file headers if needed.
func (s Source) Format() ImageFormat {
	if s.Data != nil {
		return DetectFormat(s.Data)
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return FormatUnknown
	}
	defer f.Close()

	header := make([]byte, 12)
	n, _ := f.Read(header)
	return DetectFormat(header[:n])
}

// String describes the source for logging.
func (s Source) String() string {
	if s.Path != "" {
		return s.Path
	}
	return "payload"
}

// Decode decodes the source into a 3-channel BGR Mat.
//
// The caller owns the returned Mat and must Close it.
//
// Returns:
//   - gocv.Mat: The decoded image.
//   - error: ErrUndecodable if the image could not be decoded.
func (s Source) Decode() (gocv.Mat, error) {
	if s.Data == nil && s.Path == "" {
		return gocv.NewMat(), errors.Wrap(ErrInvalidPayload, "empty source")
	}

	if s.Data == nil {
		if _, err := os.Stat(s.Path); err != nil {
			return gocv.NewMat(), errors.Wrapf(ErrUndecodable, "stat %s: %v", s.Path, err)
		}
		img := gocv.IMRead(s.Path, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			return gocv.NewMat(), errors.Wrapf(ErrUndecodable, "read %s", s.Path)
		}
		return img, nil
	}

	img, err := gocv.IMDecode(s.Data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), errors.Wrapf(ErrUndecodable, "decode %d bytes: %v", len(s.Data), err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), errors.Wrapf(ErrUndecodable, "decode %d bytes (%s)", len(s.Data), DetectFormat(s.Data))
	}
	return img, nil
}
