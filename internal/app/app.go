// Package app assembles the HTTP service from configuration. Both entry
// points use it; they differ only in the store and blob backends they pass in.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/smm-studio/internal/api"
	"github.com/fpang/smm-studio/internal/auth"
	"github.com/fpang/smm-studio/internal/blob"
	"github.com/fpang/smm-studio/internal/caption"
	"github.com/fpang/smm-studio/internal/config"
	"github.com/fpang/smm-studio/internal/imagegen"
	"github.com/fpang/smm-studio/internal/instagram"
	"github.com/fpang/smm-studio/internal/publish"
	"github.com/fpang/smm-studio/internal/store"
)

// Features reports which optional capabilities came up.
type Features struct {
	Captions       bool
	Imagen         bool
	AccountLinking bool
}

// Backends are the storage implementations chosen by the entry point.
type Backends struct {
	Store  store.Store
	Posts  blob.Store
	Frames blob.Store
}

// Build creates the API server.
func Build(ctx context.Context, cfg *config.Config, b Backends) (*api.Server, Features, error) {
	var features Features

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		return nil, features, fmt.Errorf("auth: %w", err)
	}

	graph := instagram.NewClient(instagram.WithBaseURL(cfg.GraphBaseURL))
	publisher := publish.New(b.Store, b.Posts, graph, publish.Config{
		MaxAttempts: cfg.PublishPollAttempts,
		Interval:    cfg.PublishPollInterval,
	})

	deps := api.Deps{
		Store:     b.Store,
		Frames:    b.Frames,
		Publisher: publisher,
		Graph:     graph,
		Verifier:  verifier,
	}

	var (
		captions *caption.Generator
		imagen   imagegen.ImageGenerator
	)
	if cfg.GeminiAPIKey != "" {
		client, err := caption.NewGenAIClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, features, err
		}
		captions = caption.NewGenerator(client.Models, caption.Options{
			Models:            cfg.CaptionModels,
			Language:          cfg.CaptionLanguage,
			RequestsPerMinute: cfg.AIRequestsPerMinute,
		})
		deps.Captions = captions
		features.Captions = true
		if cfg.ImagenEnabled {
			imagen = client.Models
			features.Imagen = true
		}
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set: captions disabled, images use Pollinations without translation")
	}

	// A nil *caption.Generator must not become a non-nil Translator.
	var translator imagegen.Translator
	if captions != nil {
		translator = captions
	}
	deps.Images = imagegen.New(imagen, translator, imagegen.Config{
		ImagenModel:     cfg.ImagenModel,
		PollinationsURL: cfg.PollinationsURL,
	})

	features.AccountLinking = cfg.FacebookAppID != "" && cfg.FacebookAppSecret != ""
	if !features.AccountLinking {
		log.Warn().Msg("FACEBOOK_APP_ID or FACEBOOK_APP_SECRET not set: account linking disabled")
	}

	srv := api.New(deps, api.Config{
		FacebookAppID:       cfg.FacebookAppID,
		FacebookAppSecret:   cfg.FacebookAppSecret,
		CORSOrigins:         cfg.CORSOrigins,
		AIRequestsPerMinute: cfg.AIRequestsPerMinute,
	})
	return srv, features, nil
}
