// Package caption writes Instagram post text for a photo with Gemini.
//
// Models are tried in order until one returns non-empty text. This is an
// ordered fallback, not a retry policy: each model gets one attempt per call.
// Every model sits behind its own circuit breaker so a model that keeps
// failing is skipped quickly, and all calls share one rate limiter sized to
// the API key's per-minute allowance.
package caption

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/fpang/smm-studio/internal/assets"
	"github.com/fpang/smm-studio/internal/media"
	"github.com/fpang/smm-studio/internal/metrics"
)

// ContentGenerator is the slice of the genai Models service used here.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Result is a generated caption.
type Result struct {
	Text     string   `json:"result"`
	Hashtags []string `json:"hashtags"`
	Model    string   `json:"model"`
}

// Options tune a Generator. Zero values select defaults.
type Options struct {
	Models            []string
	Language          string
	RequestsPerMinute int
	// QuotaBackoff is the pause after a quota rejection before the next model.
	QuotaBackoff time.Duration
}

// Generator produces captions and short text completions.
type Generator struct {
	client       ContentGenerator
	models       []string
	language     string
	limiter      *rate.Limiter
	breakers     map[string]*gobreaker.CircuitBreaker
	quotaBackoff time.Duration
	sleep        func(ctx context.Context, d time.Duration)
}

// NewGenerator creates a Generator.
func NewGenerator(client ContentGenerator, opts Options) *Generator {
	models := opts.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	language := opts.Language
	if language == "" {
		language = "Ukrainian"
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	backoff := opts.QuotaBackoff
	if backoff == 0 {
		backoff = time.Second
	}

	g := &Generator{
		client:       client,
		models:       models,
		language:     language,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), max(1, rpm/10)),
		breakers:     make(map[string]*gobreaker.CircuitBreaker, len(models)),
		quotaBackoff: backoff,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
	for _, m := range models {
		g.breakers[m] = newBreaker(m)
	}
	return g
}

func newBreaker(model string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// Neither the caller giving up nor a project-wide quota rejection
			// says anything about the model itself.
			return err == nil || errors.Is(err, context.Canceled) || IsQuotaError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("model", name).Str("from", from.String()).Str("to", to.String()).Msg("Model circuit breaker state change")
		},
	})
}

// Models returns the configured model order.
func (g *Generator) Models() []string { return g.models }

// Generate writes a caption for image. mimeType defaults to image/jpeg.
func (g *Generator) Generate(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	var metaContext string
	if meta, err := media.ExtractMetadata(image); err != nil {
		log.Debug().Err(err).Msg("No EXIF metadata for caption context")
	} else {
		metaContext = meta.PromptContext()
	}

	parts := []*genai.Part{
		{Text: BuildCaptionPrompt(g.language, metaContext)},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	}

	text, model, err := g.firstSuccess(ctx, "caption", parts, nil)
	if err != nil {
		return nil, err
	}

	text = CleanCaption(text)
	return &Result{Text: text, Hashtags: ExtractHashtags(text), Model: model}, nil
}

// Complete runs a text-only prompt through the same model chain.
func (g *Generator) Complete(ctx context.Context, prompt string) (string, string, error) {
	text, model, err := g.firstSuccess(ctx, "complete", []*genai.Part{{Text: prompt}}, nil)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(text), model, nil
}

// firstSuccess tries each model in order and returns the first non-empty text.
func (g *Generator) firstSuccess(ctx context.Context, op string, parts []*genai.Part, config *genai.GenerateContentConfig) (string, string, error) {
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	start := time.Now()

	var lastErr error
	sawQuota := false
	for i, model := range g.models {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", "", fmt.Errorf("rate limiter: %w", err)
		}

		callStart := time.Now()
		out, err := g.breakers[model].Execute(func() (interface{}, error) {
			resp, err := g.client.GenerateContent(ctx, model, contents, config)
			if err != nil {
				return nil, err
			}
			text := ""
			if resp != nil {
				text = resp.Text()
			}
			if strings.TrimSpace(text) == "" {
				return nil, errEmptyResponse
			}
			return text, nil
		})
		if err == nil {
			log.Info().
				Str("op", op).
				Str("model", model).
				Int("attempt", i+1).
				Dur("duration", time.Since(callStart)).
				Msg("Gemini generation succeeded")
			recordGeneration(op, model, "success", time.Since(start))
			return out.(string), model, nil
		}

		lastErr = err
		if IsQuotaError(err) {
			sawQuota = true
		}
		log.Warn().Err(err).Str("op", op).Str("model", model).Int("attempt", i+1).Msg("Model failed, trying next")
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		if IsQuotaError(err) && i < len(g.models)-1 {
			g.sleep(ctx, g.quotaBackoff)
		}
	}

	if sawQuota {
		recordGeneration(op, "", "quota", time.Since(start))
		return "", "", fmt.Errorf("%w (last error: %v)", ErrQuotaExceeded, lastErr)
	}
	recordGeneration(op, "", "failed", time.Since(start))
	return "", "", fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
}

func recordGeneration(op, model, outcome string, d time.Duration) {
	r := metrics.New(metrics.Namespace).
		Dimension("Operation", op).
		Dimension("Outcome", outcome).
		Count("GenerationResult").
		Metric("GenerationLatencyMs", float64(d.Milliseconds()), metrics.UnitMilliseconds)
	if model != "" {
		r.Property("model", model)
	}
	r.Flush()
}

// BuildCaptionPrompt returns the caption instruction for language, with
// optional photo metadata appended.
func BuildCaptionPrompt(language, metaContext string) string {
	return assets.RenderCaptionPrompt(language, metaContext)
}

var hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// ExtractHashtags returns the distinct hashtags in text, in order of first
// appearance.
func ExtractHashtags(text string) []string {
	found := hashtagPattern.FindAllString(text, -1)
	tags := make([]string, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, tag := range found {
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}
	return tags
}

// CleanCaption strips markdown emphasis and surrounding whitespace that
// models add despite instructions.
func CleanCaption(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}
