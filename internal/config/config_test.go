package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("PUBLISH_POLL_ATTEMPTS", "")
	t.Setenv("PUBLISH_POLL_INTERVAL", "")
	t.Setenv("CAPTION_MODELS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PublishPollAttempts != 10 {
		t.Errorf("expected 10 poll attempts, got %d", cfg.PublishPollAttempts)
	}
	if cfg.PublishPollInterval != 2500*time.Millisecond {
		t.Errorf("expected 2.5s poll interval, got %s", cfg.PublishPollInterval)
	}
	if cfg.GraphBaseURL != "https://graph.facebook.com/v18.0" {
		t.Errorf("unexpected graph base URL: %s", cfg.GraphBaseURL)
	}
	if len(cfg.CaptionModels) != 3 || cfg.CaptionModels[0] != "gemini-2.5-flash" {
		t.Errorf("unexpected caption models: %v", cfg.CaptionModels)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("PUBLISH_POLL_ATTEMPTS", "3")
	t.Setenv("PUBLISH_POLL_INTERVAL", "150ms")
	t.Setenv("CAPTION_MODELS", " a , ,b ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PublishPollAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.PublishPollAttempts)
	}
	if cfg.PublishPollInterval != 150*time.Millisecond {
		t.Errorf("expected 150ms, got %s", cfg.PublishPollInterval)
	}
	if len(cfg.CaptionModels) != 2 || cfg.CaptionModels[1] != "b" {
		t.Errorf("unexpected caption models: %v", cfg.CaptionModels)
	}
}

func TestLoad_IntervalMilliseconds(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("PUBLISH_POLL_INTERVAL", "400")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PublishPollInterval != 400*time.Millisecond {
		t.Errorf("expected 400ms, got %s", cfg.PublishPollInterval)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", "")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for missing AUTH_JWT_SECRET")
		}
	})
	t.Run("bad interval", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", "secret")
		t.Setenv("PUBLISH_POLL_INTERVAL", "soon")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for invalid interval")
		}
	})
	t.Run("zero attempts", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", "secret")
		t.Setenv("PUBLISH_POLL_INTERVAL", "")
		t.Setenv("PUBLISH_POLL_ATTEMPTS", "0")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for zero attempts")
		}
	})
}
