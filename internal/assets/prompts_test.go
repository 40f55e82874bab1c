package assets

import (
	"strings"
	"testing"
)

func TestRenderCaptionPrompt(t *testing.T) {
	p := RenderCaptionPrompt("Ukrainian", "")
	if !strings.Contains(p, "Instagram post in Ukrainian.") {
		t.Errorf("language not rendered: %q", p)
	}
	if strings.Contains(p, "context") || strings.Contains(p, "{{") {
		t.Errorf("empty metadata should render nothing extra: %q", p)
	}

	p = RenderCaptionPrompt("English", "## PHOTO METADATA\n- Camera: FUJIFILM X100V")
	if !strings.Contains(p, "never invent details") || !strings.HasSuffix(strings.TrimSpace(p), "X100V") {
		t.Errorf("metadata section missing: %q", p)
	}
}

func TestRenderTranslatePrompt(t *testing.T) {
	p := RenderTranslatePrompt("кіт <на> даху")
	if !strings.HasSuffix(strings.TrimSpace(p), "кіт <на> даху") {
		t.Errorf("prompt not appended verbatim: %q", p)
	}
}
