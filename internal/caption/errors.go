package caption

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrQuotaExceeded means every model failed and at least one failure
	// was a quota or rate-limit rejection. Callers should retry after a minute.
	ErrQuotaExceeded = errors.New("Gemini API free-tier request limit exceeded. Try again in a minute or switch to a paid plan")

	// ErrAllModelsFailed means every model failed for some other reason.
	ErrAllModelsFailed = errors.New("all models are busy or unavailable")

	errEmptyResponse = errors.New("model returned an empty response")
)

// RetryAfterSeconds is suggested to clients on ErrQuotaExceeded.
const RetryAfterSeconds = 60

// APIStatus returns the HTTP status code carried by a genai API error, or 0.
func APIStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

// IsQuotaError reports whether err is a quota or rate-limit rejection.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if APIStatus(err) == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit")
}
