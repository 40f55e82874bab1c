package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/smm-studio/internal/blob"
	"github.com/fpang/smm-studio/internal/caption"
	"github.com/fpang/smm-studio/internal/imagegen"
)

type analyzeRequest struct {
	Image string `json:"image"`
}

type analyzeResponse struct {
	Result   string   `json:"result"`
	Model    string   `json:"model"`
	Hashtags []string `json:"hashtags"`
}

// POST /api/analyze
// Body: {"image": "data:image/jpeg;base64,..."} (bare base64 also accepted)
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Captions == nil {
		httpError(w, http.StatusServiceUnavailable, "Caption generation is not configured. Set GEMINI_API_KEY")
		return
	}

	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		httpError(w, http.StatusBadRequest, "Image is required")
		return
	}

	data, mimeType, err := blob.DecodeBase64Image(req.Image)
	if err != nil {
		httpError(w, http.StatusBadRequest, "Invalid image data")
		return
	}

	res, err := s.deps.Captions.Generate(r.Context(), data, mimeType)
	switch {
	case err == nil:
	case errors.Is(err, caption.ErrQuotaExceeded):
		w.Header().Set("Retry-After", "60")
		respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      caption.ErrQuotaExceeded.Error(),
			"retryAfter": caption.RetryAfterSeconds,
		})
		return
	case errors.Is(err, caption.ErrAllModelsFailed):
		httpError(w, http.StatusServiceUnavailable, "All models are busy. Try again later", err.Error())
		return
	default:
		httpError(w, http.StatusInternalServerError, "Failed to analyze image", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, analyzeResponse{
		Result:   res.Text,
		Model:    res.Model,
		Hashtags: res.Hashtags,
	})
}

type generateImageRequest struct {
	Prompt string `json:"prompt"`
}

type generateImageResponse struct {
	Image               string `json:"image"`
	Prompt              string `json:"prompt"`
	TranslatedPrompt    string `json:"translatedPrompt,omitempty"`
	TranslationFallback bool   `json:"translationFallback"`
	Provider            string `json:"provider"`
}

// POST /api/generate-image
// Body: {"prompt": "..."}
func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Images == nil {
		httpError(w, http.StatusServiceUnavailable, "Image generation is not configured")
		return
	}

	var req generateImageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Images.Generate(r.Context(), req.Prompt)
	switch {
	case err == nil:
	case errors.Is(err, imagegen.ErrEmptyPrompt):
		httpError(w, http.StatusBadRequest, "Prompt is required")
		return
	case errors.Is(err, imagegen.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		httpError(w, http.StatusTooManyRequests, imagegen.ErrRateLimited.Error(), err.Error())
		return
	case errors.Is(err, imagegen.ErrPlanUnavailable):
		respondJSON(w, http.StatusForbidden, map[string]string{
			"error":   imagegen.ErrPlanUnavailable.Error(),
			"details": "Imagen requires a paid Gemini API plan",
		})
		log.Warn().Err(err).Msg("Image generation unavailable")
		return
	default:
		httpError(w, http.StatusBadGateway, "Failed to generate image", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, generateImageResponse{
		Image:               "data:" + res.MIMEType + ";base64," + res.ImageBase64,
		Prompt:              res.Prompt,
		TranslatedPrompt:    res.TranslatedPrompt,
		TranslationFallback: res.TranslationFallback,
		Provider:            res.Provider,
	})
}
