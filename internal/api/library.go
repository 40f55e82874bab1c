package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/smm-studio/internal/auth"
	"github.com/fpang/smm-studio/internal/blob"
	"github.com/fpang/smm-studio/internal/caption"
	"github.com/fpang/smm-studio/internal/store"
)

// --- Drafts ---

type draftRequest struct {
	ImageURL string `json:"imageUrl"`
	Caption  string `json:"caption"`
}

// GET /api/drafts
func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.deps.Store.ListDrafts(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to load drafts", err.Error())
		return
	}
	if drafts == nil {
		drafts = []store.Draft{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"drafts": drafts})
}

// POST /api/drafts
// Body: {"imageUrl": "...", "caption": "..."}. Hashtags are extracted from the caption.
func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" && strings.TrimSpace(req.Caption) == "" {
		httpError(w, http.StatusBadRequest, "Image or caption is required")
		return
	}

	draft := &store.Draft{
		UserID:   auth.UserFromContext(r.Context()),
		ImageURL: req.ImageURL,
		Caption:  req.Caption,
		Hashtags: caption.ExtractHashtags(req.Caption),
	}
	if err := s.deps.Store.CreateDraft(r.Context(), draft); err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to save draft", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"draft": draft})
}

// DELETE /api/drafts/{id}
func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Store.DeleteDraft(r.Context(), chi.URLParam(r, "id"), auth.UserFromContext(r.Context()))
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpError(w, http.StatusNotFound, "Draft not found")
		return
	case err != nil:
		httpError(w, http.StatusInternalServerError, "Failed to delete draft", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Frames ---

// GET /api/frames
func (s *Server) handleListFrames(w http.ResponseWriter, r *http.Request) {
	frames, err := s.deps.Store.ListFrames(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to load frames", err.Error())
		return
	}
	if frames == nil {
		frames = []store.Frame{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"frames": frames})
}

// POST /api/frames
// Multipart form: file (image/*), name.
func (s *Server) handleUploadFrame(w http.ResponseWriter, r *http.Request) {
	if s.deps.Frames == nil {
		httpError(w, http.StatusServiceUnavailable, "Frame storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFrameBytes+1<<20)
	if err := r.ParseMultipartForm(s.cfg.MaxFrameBytes); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid multipart form", err.Error())
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	file, header, err := r.FormFile("file")
	if err != nil || name == "" {
		httpError(w, http.StatusBadRequest, "File and name are required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		httpError(w, http.StatusBadRequest, "Only image files are allowed")
		return
	}
	if header.Size > s.cfg.MaxFrameBytes {
		httpError(w, http.StatusRequestEntityTooLarge, "Frame file is too large")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "Failed to read upload", err.Error())
		return
	}

	ctx := r.Context()
	now := time.Now()
	ext := strings.TrimPrefix(path.Ext(header.Filename), ".")
	if ext == "" {
		ext = strings.TrimPrefix(contentType, "image/")
	}
	objectPath := blob.ObjectPath("frames", ext, now)

	url, err := s.deps.Frames.Upload(ctx, data, contentType, objectPath)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to upload frame", err.Error())
		return
	}
	uploaded := []string{objectPath}

	frame := &store.Frame{
		Name:        name,
		StoragePath: objectPath,
		URL:         url,
	}

	// A frame without a thumbnail is still usable.
	if thumb, err := blob.Thumbnail(data, blob.DefaultThumbnailMaxDimension); err != nil {
		log.Warn().Err(err).Str("path", objectPath).Msg("Frame thumbnail skipped")
	} else {
		thumbPath := strings.TrimSuffix(objectPath, path.Ext(objectPath)) + "-thumb.png"
		if thumbURL, err := s.deps.Frames.Upload(ctx, thumb, "image/png", thumbPath); err != nil {
			log.Warn().Err(err).Str("path", thumbPath).Msg("Frame thumbnail upload failed")
		} else {
			frame.ThumbnailPath = thumbPath
			frame.ThumbnailURL = thumbURL
			uploaded = append(uploaded, thumbPath)
		}
	}

	if err := s.deps.Store.CreateFrame(ctx, frame); err != nil {
		s.removeBlobs(context.WithoutCancel(ctx), uploaded)
		httpError(w, http.StatusInternalServerError, "Failed to save frame", err.Error())
		return
	}

	log.Info().Str("frameId", frame.ID).Str("name", name).Int("bytes", len(data)).Msg("Frame uploaded")
	respondJSON(w, http.StatusCreated, map[string]interface{}{"frame": frame})
}

// DELETE /api/frames/{id} (or /api/frames?id=...)
// The blobs go first; a storage failure is logged and the row is still removed.
func (s *Server) handleDeleteFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		id = r.URL.Query().Get("id")
	}
	if id == "" {
		httpError(w, http.StatusBadRequest, "Frame ID is required")
		return
	}

	ctx := r.Context()
	frame, err := s.deps.Store.GetFrame(ctx, id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to load frame", err.Error())
		return
	}
	if frame == nil {
		httpError(w, http.StatusNotFound, "Frame not found")
		return
	}

	if s.deps.Frames != nil {
		var paths []string
		for _, p := range []string{frame.StoragePath, frame.ThumbnailPath} {
			if p != "" {
				paths = append(paths, p)
			}
		}
		s.removeBlobs(ctx, paths)
	}

	if err := s.deps.Store.DeleteFrame(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		httpError(w, http.StatusInternalServerError, "Failed to delete frame", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) removeBlobs(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.deps.Frames.Delete(ctx, p); err != nil {
			log.Error().Err(err).Str("path", p).Msg("Failed to delete frame blob")
		}
	}
}
