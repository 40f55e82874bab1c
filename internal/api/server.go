// Package api is the HTTP surface of the studio: caption and image
// generation, Instagram account linking and publishing, drafts, and frames.
//
// Endpoints:
//
//	GET    /api/health                     health check (no auth)
//	POST   /api/analyze                    caption an image
//	POST   /api/generate-image             generate an image from a prompt
//	POST   /api/instagram/publish          publish an image to a linked account
//	POST   /api/instagram/fetch-accounts   list Pages with Instagram Business accounts
//	POST   /api/instagram/save-accounts    link selected accounts
//	GET    /api/instagram/accounts         caller's linked accounts
//	DELETE /api/instagram/accounts/{id}    disconnect an account
//	GET    /api/drafts                     caller's drafts, newest first
//	POST   /api/drafts                     save a draft
//	DELETE /api/drafts/{id}                delete a draft
//	GET    /api/frames                     all frames, newest first
//	POST   /api/frames                     upload a frame (multipart)
//	DELETE /api/frames/{id}                delete a frame
//
// Every route except health requires a bearer token.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"github.com/fpang/smm-studio/internal/auth"
	"github.com/fpang/smm-studio/internal/blob"
	"github.com/fpang/smm-studio/internal/caption"
	"github.com/fpang/smm-studio/internal/imagegen"
	"github.com/fpang/smm-studio/internal/instagram"
	"github.com/fpang/smm-studio/internal/publish"
	"github.com/fpang/smm-studio/internal/store"
)

// Captioner writes a caption for an image. *caption.Generator satisfies it.
type Captioner interface {
	Generate(ctx context.Context, image []byte, mimeType string) (*caption.Result, error)
}

// ImageGenerator creates an image from a prompt. *imagegen.Generator satisfies it.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*imagegen.Result, error)
}

// Publisher runs a publish flow. *publish.Orchestrator satisfies it.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) *publish.Result
}

// AccountLinker talks to the Graph API during account linking.
// *instagram.Client satisfies it.
type AccountLinker interface {
	ExchangeLongLivedToken(ctx context.Context, appID, appSecret, shortToken string) (*instagram.LongLivedToken, error)
	ListPages(ctx context.Context, userToken string) ([]instagram.Page, error)
	PageAccessToken(ctx context.Context, pageID, userToken string) (string, error)
}

var (
	_ Captioner      = (*caption.Generator)(nil)
	_ ImageGenerator = (*imagegen.Generator)(nil)
	_ Publisher      = (*publish.Orchestrator)(nil)
	_ AccountLinker  = (*instagram.Client)(nil)
)

// Deps are the collaborators behind the handlers. Captions and Images may be
// nil, in which case their endpoints answer 503.
type Deps struct {
	Store     store.Store
	Frames    blob.Store
	Captions  Captioner
	Images    ImageGenerator
	Publisher Publisher
	Graph     AccountLinker
	Verifier  *auth.Verifier
}

// Config holds the HTTP-level settings.
type Config struct {
	FacebookAppID     string
	FacebookAppSecret string
	CORSOrigins       []string
	// AIRequestsPerMinute is the per-user allowance on analyze and generate-image.
	AIRequestsPerMinute int
	// MaxFrameBytes caps frame uploads. Zero means 10 MB.
	MaxFrameBytes int64
}

// Server routes requests to handlers.
type Server struct {
	deps    Deps
	cfg     Config
	limiter *userLimiter
}

// New creates a Server.
func New(deps Deps, cfg Config) *Server {
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 10 << 20
	}
	return &Server{
		deps:    deps,
		cfg:     cfg,
		limiter: newUserLimiter(cfg.AIRequestsPerMinute),
	}
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(withRequestLog)
	r.Use(withCORS(s.cfg.CORSOrigins))
	r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.deps.Verifier.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.middleware)
			r.Post("/api/analyze", s.handleAnalyze)
			r.Post("/api/generate-image", s.handleGenerateImage)
		})

		r.Post("/api/instagram/publish", s.handlePublish)
		r.Post("/api/instagram/fetch-accounts", s.handleFetchAccounts)
		r.Post("/api/instagram/save-accounts", s.handleSaveAccounts)
		r.Get("/api/instagram/accounts", s.handleListAccounts)
		r.Delete("/api/instagram/accounts/{id}", s.handleDeleteAccount)

		r.Get("/api/drafts", s.handleListDrafts)
		r.Post("/api/drafts", s.handleCreateDraft)
		r.Delete("/api/drafts/{id}", s.handleDeleteDraft)

		r.Get("/api/frames", s.handleListFrames)
		r.Post("/api/frames", s.handleUploadFrame)
		r.Delete("/api/frames", s.handleDeleteFrame)
		r.Delete("/api/frames/{id}", s.handleDeleteFrame)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
