package blob

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultThumbnailMaxDimension bounds the longest side of frame thumbnails.
const DefaultThumbnailMaxDimension = 256

// Thumbnail decodes an image and returns a PNG no larger than maxDimension on
// its longest side. PNG keeps frame transparency intact. Images already within
// bounds are re-encoded at their original size.
func Thumbnail(data []byte, maxDimension int) ([]byte, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultThumbnailMaxDimension
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	newW, newH := fitWithin(w, h, maxDimension)

	var out image.Image = img
	if newW != w || newH != h {
		resized := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	log.Debug().
		Str("format", format).
		Int("width", w).
		Int("height", h).
		Int("thumb_width", newW).
		Int("thumb_height", newH).
		Int("output_size", buf.Len()).
		Msg("Thumbnail generated")

	return buf.Bytes(), nil
}

// fitWithin scales (w, h) down to fit a limit x limit box, preserving aspect ratio.
func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
