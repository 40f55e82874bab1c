// Package publish drives one image from "ready" to "published on Instagram".
//
// The Graph API publishes in two phases: a media container is created from a
// public image URL, Instagram processes it asynchronously, and only a FINISHED
// container can be published. Orchestrator hides that behind a single call:
//
//	Validating → (UploadingImage) → CreatingContainer → Polling → Publishing → Done
//
// with Aborted reachable from every state. Failures never escape as Go errors;
// they are folded into Result.Err with a Kind the HTTP layer maps to a status.
package publish

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/smm-studio/internal/blob"
	"github.com/fpang/smm-studio/internal/instagram"
	"github.com/fpang/smm-studio/internal/metrics"
	"github.com/fpang/smm-studio/internal/store"
)

// Default polling parameters: worst case about 25s before giving up.
const (
	DefaultMaxAttempts = 10
	DefaultInterval    = 2500 * time.Millisecond
)

// State names a step of the publish flow.
type State string

const (
	StateValidating        State = "Validating"
	StateUploadingImage    State = "UploadingImage"
	StateCreatingContainer State = "CreatingContainer"
	StatePolling           State = "Polling"
	StatePublishing        State = "Publishing"
	StateDone              State = "Done"
	StateAborted           State = "Aborted"
)

// AccountGetter reads a linked account, returning (nil, nil) when the account
// does not exist or belongs to a different user.
type AccountGetter interface {
	GetAccount(ctx context.Context, id, userID string) (*store.Account, error)
}

// Uploader materializes bytes at a public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType, path string) (string, error)
}

// GraphAPI is the remote publishing contract.
type GraphAPI interface {
	CreateImageContainer(ctx context.Context, businessID, accessToken, imageURL, caption string) (string, error)
	ContainerStatus(ctx context.Context, containerID, accessToken string) (string, error)
	Publish(ctx context.Context, businessID, accessToken, containerID string) (string, error)
}

// Compile-time checks against the production collaborators.
var (
	_ AccountGetter = (store.AccountStore)(nil)
	_ Uploader      = (blob.Store)(nil)
	_ GraphAPI      = (*instagram.Client)(nil)
)

// Request describes one publish attempt. It is never stored.
type Request struct {
	// ImageRef is an http(s) URL or a data:image/<type>;base64, URI.
	ImageRef  string
	Caption   string
	AccountID string
	// UserID is the authenticated caller. Empty means unauthenticated.
	UserID string
}

// Result is the outcome of Publish. Exactly one of MediaID and Err is set.
type Result struct {
	MediaID     string
	ContainerID string
	ImageURL    string
	Attempts    int
	// State is the last state reached: Done on success, otherwise the state
	// that aborted.
	State State
	Err   *Error
}

// OK reports whether the post was published.
func (r *Result) OK() bool { return r.Err == nil }

// Config holds the polling parameters. Zero values select the defaults.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Orchestrator runs publish flows. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	accounts AccountGetter
	blobs    Uploader
	graph    GraphAPI
	cfg      Config
	sleep    SleepFunc
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the wait between poll attempts. Tests pass a no-op.
func WithSleep(fn SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithClock replaces time.Now for upload paths and latency metrics.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(accounts AccountGetter, blobs Uploader, graph GraphAPI, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		accounts: accounts,
		blobs:    blobs,
		graph:    graph,
		cfg:      cfg.withDefaults(),
		sleep:    contextSleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective polling parameters.
func (o *Orchestrator) Config() Config { return o.cfg }

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Publish runs the whole flow for req.
func (o *Orchestrator) Publish(ctx context.Context, req Request) *Result {
	start := o.now()
	res := o.run(ctx, req)

	outcome := "success"
	if res.Err != nil {
		outcome = string(res.Err.Kind)
		log.Warn().
			Str("accountId", req.AccountID).
			Str("state", string(res.State)).
			Str("kind", string(res.Err.Kind)).
			Str("error", res.Err.Message).
			Int("attempts", res.Attempts).
			Msg("Publish aborted")
	} else {
		log.Info().
			Str("accountId", req.AccountID).
			Str("containerId", res.ContainerID).
			Str("mediaId", res.MediaID).
			Int("attempts", res.Attempts).
			Msg("Published to Instagram")
	}

	metrics.New(metrics.Namespace).
		Dimension("Outcome", outcome).
		Count("PublishResult").
		Metric("PublishLatencyMs", float64(o.now().Sub(start).Milliseconds()), metrics.UnitMilliseconds).
		Metric("PollAttempts", float64(res.Attempts), metrics.UnitCount).
		Flush()

	return res
}

func (o *Orchestrator) run(ctx context.Context, req Request) *Result {
	res := &Result{State: StateValidating}
	abort := func(err *Error) *Result {
		res.Err = err
		return res
	}

	// Validating
	if strings.TrimSpace(req.ImageRef) == "" || strings.TrimSpace(req.AccountID) == "" {
		return abort(newError(KindValidation, "Image URL and account ID are required"))
	}
	if req.UserID == "" {
		return abort(newError(KindAuthorization, "Unauthorized"))
	}
	inline := blob.IsDataURI(req.ImageRef)
	if !inline && !isHTTPURL(req.ImageRef) {
		return abort(newError(KindValidation, "Image must be an http(s) URL or a base64 data URI"))
	}

	account, err := o.accounts.GetAccount(ctx, req.AccountID, req.UserID)
	if err != nil {
		log.Error().Err(err).Str("accountId", req.AccountID).Msg("Account lookup failed")
	}
	if err != nil || account == nil {
		return abort(newError(KindAuthorization, "Instagram account not found"))
	}

	imageURL := req.ImageRef
	if inline {
		res.State = StateUploadingImage
		log.Debug().Str("accountId", account.ID).Msg("Uploading inline image")

		img, err := blob.ParseDataURI(req.ImageRef)
		if err != nil {
			return abort(newError(KindUpload, "Invalid base64 image format"))
		}
		path := blob.ObjectPath(req.UserID, img.Type, o.now())
		imageURL, err = o.blobs.Upload(ctx, img.Data, img.ContentType, path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Inline image upload failed")
			return abort(newError(KindUpload, "Failed to upload image: %v", err))
		}
	}
	res.ImageURL = imageURL

	res.State = StateCreatingContainer
	containerID, err := o.graph.CreateImageContainer(ctx, account.InstagramBusinessID, account.AccessToken, imageURL, req.Caption)
	if err != nil {
		if ctx.Err() != nil {
			return abort(newError(KindCanceled, "Publish canceled"))
		}
		return abort(newError(KindRemoteAPI, "Failed to create media: %s", remoteMessage(err)))
	}
	res.ContainerID = containerID

	res.State = StatePolling
	if perr := o.poll(ctx, containerID, account.AccessToken, res); perr != nil {
		return abort(perr)
	}

	res.State = StatePublishing
	mediaID, err := o.graph.Publish(ctx, account.InstagramBusinessID, account.AccessToken, containerID)
	if err != nil {
		if ctx.Err() != nil {
			return abort(newError(KindCanceled, "Publish canceled"))
		}
		return abort(newError(KindRemoteAPI, "Failed to publish: %s", remoteMessage(err)))
	}

	res.MediaID = mediaID
	res.State = StateDone
	return res
}

// poll waits for the container to reach FINISHED. It sleeps only between
// attempts, so MaxAttempts polls cost MaxAttempts-1 intervals.
func (o *Orchestrator) poll(ctx context.Context, containerID, accessToken string, res *Result) *Error {
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := o.sleep(ctx, o.cfg.Interval); err != nil {
				return newError(KindCanceled, "Publish canceled while waiting for container")
			}
		}
		if ctx.Err() != nil {
			return newError(KindCanceled, "Publish canceled while waiting for container")
		}

		res.Attempts = attempt
		status, err := o.graph.ContainerStatus(ctx, containerID, accessToken)
		if err != nil {
			var apiErr *instagram.APIError
			if errors.As(err, &apiErr) {
				return newError(KindRemoteAPI, "Failed to check container status: %s", apiErr.Message)
			}
			log.Warn().Err(err).Str("containerId", containerID).Int("attempt", attempt).Msg("Container status poll error, retrying")
			continue
		}

		switch status {
		case instagram.StatusFinished:
			log.Debug().Str("containerId", containerID).Int("attempt", attempt).Msg("Container processing finished")
			return nil
		case instagram.StatusError:
			return newError(KindRemoteAPI, "Container processing failed with ERROR status")
		case instagram.StatusInProgress:
			log.Debug().Str("containerId", containerID).Int("attempt", attempt).Msg("Container still processing")
		default:
			log.Warn().Str("containerId", containerID).Str("status", status).Int("attempt", attempt).Msg("Unknown container status")
		}
	}

	// Sleeps happen only between attempts.
	waited := time.Duration(o.cfg.MaxAttempts-1) * o.cfg.Interval
	return newError(KindTimeout, "Container not ready after %d attempts (%gs)",
		o.cfg.MaxAttempts, waited.Seconds())
}

// remoteMessage extracts the Graph API message when there is one.
func remoteMessage(err error) string {
	var apiErr *instagram.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func isHTTPURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
