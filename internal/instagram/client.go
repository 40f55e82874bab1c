// Package instagram is a client for the Facebook Graph API endpoints used to
// publish to Instagram Business accounts and to link those accounts.
//
// Publishing is two-phase:
//  1. Create a media container from a publicly fetchable image URL
//  2. Poll the container until Instagram reports FINISHED
//  3. Publish the container
//
// Tokens are per call: each linked account carries its own long-lived page
// access token, so the client itself holds no credentials.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Facebook Graph API base URL.
	DefaultBaseURL = "https://graph.facebook.com/v18.0"

	defaultTimeout = 30 * time.Second
)

// Container status codes reported by GET /{container-id}?fields=status_code.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusError      = "ERROR"
)

// Client calls the Graph API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different Graph API host or version.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Graph API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is an error object returned in a Graph API response body.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Graph API error: %s (type: %s, code: %d)", e.Message, e.Type, e.Code)
}

type idResponse struct {
	ID    string    `json:"id"`
	Error *APIError `json:"error,omitempty"`
}

type containerStatusResponse struct {
	ID         string    `json:"id"`
	StatusCode string    `json:"status_code"`
	Error      *APIError `json:"error,omitempty"`
}

// CreateImageContainer creates an image media container for businessID.
// imageURL must be fetchable by Facebook's servers.
func (c *Client) CreateImageContainer(ctx context.Context, businessID, accessToken, imageURL, caption string) (string, error) {
	log.Debug().Str("businessId", businessID).Int("captionLength", len(caption)).Msg("Creating image container")

	var resp idResponse
	err := c.postJSON(ctx, "/"+url.PathEscape(businessID)+"/media", map[string]string{
		"image_url":    imageURL,
		"caption":      caption,
		"access_token": accessToken,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create image container: %w", err)
	}
	if resp.Error != nil {
		return "", logAPIError("create image container", resp.Error)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create image container: no ID returned")
	}

	log.Info().Str("containerId", resp.ID).Str("businessId", businessID).Msg("Image container created")
	return resp.ID, nil
}

// ContainerStatus returns the container's status_code: IN_PROGRESS,
// FINISHED, ERROR, or whatever else the API reports.
func (c *Client) ContainerStatus(ctx context.Context, containerID, accessToken string) (string, error) {
	query := url.Values{
		"fields":       {"status_code"},
		"access_token": {accessToken},
	}

	var status containerStatusResponse
	if err := c.getJSON(ctx, "/"+url.PathEscape(containerID), query, &status); err != nil {
		return "", fmt.Errorf("container status: %w", err)
	}
	if status.Error != nil {
		return "", status.Error
	}
	return status.StatusCode, nil
}

// Publish publishes a FINISHED container and returns the Instagram media ID.
func (c *Client) Publish(ctx context.Context, businessID, accessToken, containerID string) (string, error) {
	log.Debug().Str("containerId", containerID).Msg("Publishing container")

	var resp idResponse
	err := c.postJSON(ctx, "/"+url.PathEscape(businessID)+"/media_publish", map[string]string{
		"creation_id":  containerID,
		"access_token": accessToken,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	if resp.Error != nil {
		return "", logAPIError("publish", resp.Error)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("publish container %s: no media ID returned", containerID)
	}

	log.Info().Str("containerId", containerID).Str("mediaId", resp.ID).Msg("Container published")
	return resp.ID, nil
}

// postJSON sends a JSON body and decodes the JSON reply into out. The Graph
// API reports most failures in the body, so non-2xx statuses are decoded too.
func (c *Client) postJSON(ctx context.Context, endpoint string, body map[string]string, out any) error {
	fields := make([]string, 0, len(body))
	for k := range body {
		fields = append(fields, k)
	}
	log.Trace().Strs("fields", fields).Msg("Graph API request fields")

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	start := time.Now()
	log.Debug().Str("method", req.Method).Str("path", endpoint).Msg("Graph API request")

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		log.Debug().Dur("duration", duration).Err(err).Msg("Graph API response")
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Graph API response")

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response (HTTP %d): %w (body: %s)", httpResp.StatusCode, err, truncate(string(raw), 200))
	}
	return nil
}

func logAPIError(op string, e *APIError) error {
	log.Error().
		Str("op", op).
		Str("errorMessage", e.Message).
		Str("errorType", e.Type).
		Int("errorCode", e.Code).
		Str("fbtraceId", e.FBTraceID).
		Msg("Graph API error")
	return e
}

// truncate returns the first n bytes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
