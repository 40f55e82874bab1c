package caption

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini model IDs usable for captions and prompt translation.
//
// | Model                 | Use                           |
// |-----------------------|-------------------------------|
// | gemini-2.5-flash      | default, balanced             |
// | gemini-2.5-pro        | fallback, slower but stronger |
// | gemini-2.5-flash-lite | last resort, cheapest         |
const (
	ModelGemini25Flash     = "gemini-2.5-flash"
	ModelGemini25Pro       = "gemini-2.5-pro"
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"
)

// DefaultModels is the order models are tried in when none are configured.
var DefaultModels = []string{ModelGemini25Flash, ModelGemini25Pro, ModelGemini25FlashLite}

// NewGenAIClient creates a Gemini API client for apiKey.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return client, nil
}
