package media

import (
	"strings"
	"testing"
	"time"
)

func TestPromptContext(t *testing.T) {
	meta := &Metadata{
		Latitude:    40.7128,
		Longitude:   -74.0060,
		HasGPS:      true,
		DateTaken:   time.Date(2024, 12, 31, 10, 30, 0, 0, time.UTC),
		HasDate:     true,
		CameraMake:  "Apple",
		CameraModel: "iPhone 15 Pro",
	}

	ctx := meta.PromptContext()
	for _, want := range []string{"Tuesday, December 31, 2024", "10:30 AM", "40.712800, -74.006000", "Apple iPhone 15 Pro"} {
		if !strings.Contains(ctx, want) {
			t.Errorf("PromptContext() missing %q:\n%s", want, ctx)
		}
	}
}

func TestPromptContext_Partial(t *testing.T) {
	meta := &Metadata{CameraModel: "X100V"}
	ctx := meta.PromptContext()
	if !strings.Contains(ctx, "- Camera: X100V") {
		t.Errorf("unexpected context %q", ctx)
	}
	if strings.Contains(ctx, "Location") || strings.Contains(ctx, "Taken") {
		t.Errorf("context mentions absent fields: %q", ctx)
	}
}

func TestPromptContext_Empty(t *testing.T) {
	if got := (&Metadata{}).PromptContext(); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
	var nilMeta *Metadata
	if got := nilMeta.PromptContext(); got != "" {
		t.Errorf("expected empty context for nil, got %q", got)
	}
}

func TestExtractMetadata_NotAnImage(t *testing.T) {
	if _, err := ExtractMetadata([]byte("definitely not an image")); err == nil {
		t.Error("expected error for non-image bytes")
	}
}
