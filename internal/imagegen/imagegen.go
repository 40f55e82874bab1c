// Package imagegen turns a text prompt into a square image for a post.
//
// Imagen (through the Gemini API) is the primary provider. When Imagen is
// disabled, not available on the API plan, or rejects the call, the prompt
// is translated to English and sent to Pollinations. If translation itself
// fails the untranslated prompt is used and the result says so.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/smm-studio/internal/assets"
	"github.com/fpang/smm-studio/internal/caption"
	"github.com/fpang/smm-studio/internal/metrics"
)

// Provider names reported in Result.
const (
	ProviderImagen       = "imagen"
	ProviderPollinations = "pollinations"
)

// DefaultPollinationsURL is the Pollinations prompt endpoint.
const DefaultPollinationsURL = "https://image.pollinations.ai/prompt/"

// DefaultMaxImageBytes caps a downloaded Pollinations image.
const DefaultMaxImageBytes = 20 << 20

var (
	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	// ErrPlanUnavailable means Imagen is not enabled for the API key (HTTP 403/404).
	ErrPlanUnavailable = errors.New("image generation is not available on the current API plan")
	// ErrRateLimited means the provider rejected the call with HTTP 429.
	ErrRateLimited = errors.New("image generation rate limit exceeded, try again in a minute")
)

// ImageGenerator is the slice of the genai Models service used for Imagen.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Translator completes a text prompt. *caption.Generator satisfies it.
type Translator interface {
	Complete(ctx context.Context, prompt string) (string, string, error)
}

var _ Translator = (*caption.Generator)(nil)

// Result is a generated image.
type Result struct {
	ImageBase64 string `json:"image"`
	MIMEType    string `json:"mimeType"`
	Provider    string `json:"provider"`
	Prompt      string `json:"prompt"`
	// TranslatedPrompt is what was sent to a provider that needs English.
	TranslatedPrompt string `json:"translatedPrompt,omitempty"`
	// TranslationFallback is true when translation failed and the original
	// prompt was sent instead.
	TranslationFallback bool `json:"translationFallback"`
}

// Config configures a Generator.
type Config struct {
	ImagenModel     string
	PollinationsURL string
	HTTPClient      *http.Client
	MaxImageBytes   int64
}

// Generator produces images. imagen and translator may be nil.
type Generator struct {
	imagen          ImageGenerator
	imagenModel     string
	translator      Translator
	pollinationsURL string
	httpClient      *http.Client
	maxImageBytes   int64
}

// New creates a Generator. A nil imagen disables the primary provider.
func New(imagen ImageGenerator, translator Translator, cfg Config) *Generator {
	if cfg.ImagenModel == "" {
		cfg.ImagenModel = "imagen-3.0-generate-002"
	}
	if cfg.PollinationsURL == "" {
		cfg.PollinationsURL = DefaultPollinationsURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	return &Generator{
		imagen:          imagen,
		imagenModel:     cfg.ImagenModel,
		translator:      translator,
		pollinationsURL: cfg.PollinationsURL,
		httpClient:      cfg.HTTPClient,
		maxImageBytes:   cfg.MaxImageBytes,
	}
}

// Generate creates one 1:1 image for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	start := time.Now()

	var imagenErr error
	if g.imagen != nil {
		res, err := g.generateImagen(ctx, prompt)
		if err == nil {
			record(ProviderImagen, "success", time.Since(start))
			return res, nil
		}
		imagenErr = err
		log.Warn().Err(err).Str("model", g.imagenModel).Msg("Imagen failed, falling back to Pollinations")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	res, err := g.generatePollinations(ctx, prompt)
	if err != nil {
		record(ProviderPollinations, "failed", time.Since(start))
		if imagenErr != nil {
			return nil, fmt.Errorf("%w (imagen: %w)", err, imagenErr)
		}
		return nil, err
	}
	record(ProviderPollinations, "success", time.Since(start))
	return res, nil
}

func (g *Generator) generateImagen(ctx context.Context, prompt string) (*Result, error) {
	resp, err := g.imagen.GenerateImages(ctx, g.imagenModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "1:1",
	})
	if err != nil {
		return nil, classifyImagenError(err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		return nil, fmt.Errorf("imagen returned no image")
	}

	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.ImageBytes)
	}
	log.Info().Str("model", g.imagenModel).Int("bytes", len(img.ImageBytes)).Msg("Image generated with Imagen")
	return &Result{
		ImageBase64: base64.StdEncoding.EncodeToString(img.ImageBytes),
		MIMEType:    mime,
		Provider:    ProviderImagen,
		Prompt:      prompt,
	}, nil
}

func classifyImagenError(err error) error {
	switch caption.APIStatus(err) {
	case http.StatusForbidden, http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrPlanUnavailable, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("imagen: %w", err)
}

// translate returns an English version of prompt, or the prompt itself with
// fallback=true when no model could translate it.
func (g *Generator) translate(ctx context.Context, prompt string) (string, bool) {
	if g.translator == nil {
		return prompt, true
	}
	text, model, err := g.translator.Complete(ctx, TranslationPrompt(prompt))
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn().Err(err).Msg("Prompt translation failed, using original prompt")
		return prompt, true
	}
	text = strings.Trim(strings.TrimSpace(text), `"'`)
	log.Debug().Str("model", model).Str("translated", text).Msg("Prompt translated")
	return text, false
}

// TranslationPrompt asks a text model for an English image prompt.
func TranslationPrompt(prompt string) string {
	return assets.RenderTranslatePrompt(prompt)
}

func (g *Generator) generatePollinations(ctx context.Context, prompt string) (*Result, error) {
	english, fallback := g.translate(ctx, prompt)

	q := url.Values{
		"width":  {"1024"},
		"height": {"1024"},
		"nologo": {"true"},
	}
	u := g.pollinationsURL + url.PathEscape(english) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build pollinations request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pollinations request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pollinations returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read pollinations image: %w", err)
	}
	if int64(len(data)) > g.maxImageBytes {
		return nil, fmt.Errorf("pollinations image exceeds %d bytes", g.maxImageBytes)
	}
	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("pollinations returned %s, not an image", mime)
	}

	log.Info().Int("bytes", len(data)).Bool("translationFallback", fallback).Msg("Image generated with Pollinations")
	return &Result{
		ImageBase64:         base64.StdEncoding.EncodeToString(data),
		MIMEType:            mime,
		Provider:            ProviderPollinations,
		Prompt:              prompt,
		TranslatedPrompt:    english,
		TranslationFallback: fallback,
	}, nil
}

func record(provider, outcome string, d time.Duration) {
	metrics.New(metrics.Namespace).
		Dimension("Provider", provider).
		Dimension("Outcome", outcome).
		Count("ImageGenerationResult").
		Metric("ImageGenerationLatencyMs", float64(d.Milliseconds()), metrics.UnitMilliseconds).
		Flush()
}
