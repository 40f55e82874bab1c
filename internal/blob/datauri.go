package blob

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"regexp"
	"strings"

	_ "image/gif"  // register GIF for image.DecodeConfig
	_ "image/jpeg" // register JPEG for image.DecodeConfig
	_ "image/png"  // register PNG for image.DecodeConfig

	_ "golang.org/x/image/bmp"  // register BMP for image.DecodeConfig
	_ "golang.org/x/image/tiff" // register TIFF for image.DecodeConfig
	_ "golang.org/x/image/webp" // register WebP for image.DecodeConfig
)

// ErrInvalidDataURI is returned when an inline image does not have the
// data:image/<type>;base64,<payload> shape or the payload is not an image.
var ErrInvalidDataURI = errors.New("invalid base64 image format")

var dataURIPattern = regexp.MustCompile(`^data:image/(\w+);base64,(.+)$`)

// InlineImage is a decoded data URI.
type InlineImage struct {
	Type        string // subtype from the URI, e.g. "png"
	ContentType string // "image/" + Type
	Data        []byte
	Width       int
	Height      int
	Format      string // format detected from the bytes
}

// IsDataURI reports whether ref should be treated as an inline payload
// rather than a fetchable URL.
func IsDataURI(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}

// ParseDataURI decodes an inline image and checks that its bytes really are
// an image in one of the registered formats.
func ParseDataURI(s string) (*InlineImage, error) {
	m := dataURIPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, ErrInvalidDataURI
	}
	imgType := strings.ToLower(m[1])

	data, err := decodeBase64(m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}

	return &InlineImage{
		Type:        imgType,
		ContentType: "image/" + imgType,
		Data:        data,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      format,
	}, nil
}

// DecodeBase64Image accepts either a data URI or a bare base64 payload and
// returns the raw bytes with their detected MIME type.
func DecodeBase64Image(s string) ([]byte, string, error) {
	if IsDataURI(s) {
		img, err := ParseDataURI(s)
		if err != nil {
			return nil, "", err
		}
		return img.Data, mimeForFormat(img.Format, img.ContentType), nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	data, err := decodeBase64(s)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return data, mimeForFormat(format, "image/jpeg"), nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func mimeForFormat(format, fallback string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	}
	return fallback
}
