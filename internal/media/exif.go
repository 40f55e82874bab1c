// Package media reads what an uploaded photo says about itself so the
// caption model can mention when and where it was taken.
package media

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Metadata is the EXIF subset used in caption prompts.
type Metadata struct {
	Latitude  float64
	Longitude float64
	HasGPS    bool

	DateTaken time.Time
	HasDate   bool

	CameraMake  string
	CameraModel string
}

// Empty reports whether nothing useful was found.
func (m *Metadata) Empty() bool {
	return !m.HasGPS && !m.HasDate && m.CameraMake == "" && m.CameraModel == ""
}

// ExtractMetadata decodes EXIF from in-memory image bytes. PNG and WebP
// uploads from the browser usually carry none; that is an error here and the
// caller should treat it as "no context".
func ExtractMetadata(data []byte) (*Metadata, error) {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode EXIF metadata: %w", err)
	}

	m := &Metadata{}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		m.Latitude = gps.Latitude()
		m.Longitude = gps.Longitude()
		m.HasGPS = true
	}

	// DateTimeOriginal > CreateDate > ModifyDate
	for _, t := range []time.Time{exifData.DateTimeOriginal(), exifData.CreateDate(), exifData.ModifyDate()} {
		if !t.IsZero() {
			m.DateTaken = t
			m.HasDate = true
			break
		}
	}

	m.CameraMake = strings.TrimSpace(exifData.Make)
	m.CameraModel = strings.TrimSpace(exifData.Model)

	log.Debug().
		Int("bytes", len(data)).
		Bool("hasGps", m.HasGPS).
		Bool("hasDate", m.HasDate).
		Msg("Image metadata extracted")

	return m, nil
}

// PromptContext renders the metadata as a prompt section. It returns "" when
// there is nothing to say.
func (m *Metadata) PromptContext() string {
	if m == nil || m.Empty() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## PHOTO METADATA\n\n")

	if m.HasDate {
		fmt.Fprintf(&sb, "- Taken: %s at %s\n", m.DateTaken.Format("Monday, January 2, 2006"), m.DateTaken.Format("3:04 PM"))
	}
	if m.HasGPS {
		fmt.Fprintf(&sb, "- Location: %.6f, %.6f (https://www.google.com/maps?q=%.6f,%.6f)\n", m.Latitude, m.Longitude, m.Latitude, m.Longitude)
	}
	if m.CameraMake != "" || m.CameraModel != "" {
		fmt.Fprintf(&sb, "- Camera: %s\n", strings.TrimSpace(m.CameraMake+" "+m.CameraModel))
	}
	return sb.String()
}
