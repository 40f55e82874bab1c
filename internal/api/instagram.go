package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/smm-studio/internal/auth"
	"github.com/fpang/smm-studio/internal/instagram"
	"github.com/fpang/smm-studio/internal/publish"
	"github.com/fpang/smm-studio/internal/store"
)

type publishRequest struct {
	ImageURL  string `json:"imageUrl"`
	Caption   string `json:"caption"`
	AccountID string `json:"accountId"`
}

// POST /api/instagram/publish
// Body: {"imageUrl": "https://... or data:image/...", "caption": "...", "accountId": "..."}
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserFromContext(r.Context())
	res := s.deps.Publisher.Publish(r.Context(), publish.Request{
		ImageRef:  req.ImageURL,
		Caption:   req.Caption,
		AccountID: req.AccountID,
		UserID:    userID,
	})
	if !res.OK() {
		respondJSON(w, publishStatus(res.Err.Kind, userID), map[string]interface{}{
			"success": false,
			"error":   res.Err.Message,
			"kind":    res.Err.Kind,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Post published successfully",
		"mediaId": res.MediaID,
	})
}

// publishStatus maps an abort kind to an HTTP status.
func publishStatus(kind publish.Kind, userID string) int {
	switch kind {
	case publish.KindValidation:
		return http.StatusBadRequest
	case publish.KindAuthorization:
		if userID == "" {
			return http.StatusUnauthorized
		}
		return http.StatusNotFound
	case publish.KindUpload:
		return http.StatusInternalServerError
	case publish.KindRemoteAPI:
		return http.StatusBadRequest
	case publish.KindTimeout:
		return http.StatusGatewayTimeout
	case publish.KindCanceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type tokenRequest struct {
	AccessToken string `json:"accessToken"`
}

type linkableAccount struct {
	PageID         string `json:"pageId"`
	PageName       string `json:"pageName"`
	InstagramID    string `json:"instagramId"`
	Username       string `json:"username"`
	Name           string `json:"name,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// POST /api/instagram/fetch-accounts
// Body: {"accessToken": "<facebook user token>"}
func (s *Server) handleFetchAccounts(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		httpError(w, http.StatusBadRequest, "Access token is required")
		return
	}

	pages, err := s.deps.Graph.ListPages(r.Context(), req.AccessToken)
	if err != nil {
		graphError(w, "Failed to fetch Facebook pages", err)
		return
	}

	business := instagram.BusinessPages(pages)
	accounts := make([]linkableAccount, 0, len(business))
	for _, p := range business {
		ig := p.InstagramBusinessAccount
		accounts = append(accounts, linkableAccount{
			PageID:         p.ID,
			PageName:       p.Name,
			InstagramID:    ig.ID,
			Username:       ig.Username,
			Name:           ig.Name,
			ProfilePicture: ig.ProfilePictureURL,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accounts":           accounts,
		"totalPages":         len(pages),
		"pagesWithInstagram": len(business),
	})
}

type selectedAccount struct {
	PageID      string `json:"pageId"`
	InstagramID string `json:"instagramId"`
}

type saveAccountsRequest struct {
	AccessToken      string            `json:"accessToken"`
	SelectedAccounts []selectedAccount `json:"selectedAccounts"`
}

// POST /api/instagram/save-accounts
// Body: {"accessToken": "...", "selectedAccounts": [{"pageId": "...", "instagramId": "..."}]}
//
// Exchanges the user token for a long-lived one, then stores a page token per
// selected Instagram account. Accounts that fail are reported in "errors"
// while the rest are still saved.
func (s *Server) handleSaveAccounts(w http.ResponseWriter, r *http.Request) {
	var req saveAccountsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		httpError(w, http.StatusBadRequest, "Access token is required")
		return
	}
	if len(req.SelectedAccounts) == 0 {
		httpError(w, http.StatusBadRequest, "Select at least one account")
		return
	}
	if s.cfg.FacebookAppID == "" || s.cfg.FacebookAppSecret == "" {
		httpError(w, http.StatusInternalServerError, "Facebook app is not configured", "FACEBOOK_APP_ID or FACEBOOK_APP_SECRET missing")
		return
	}

	ctx := r.Context()
	userID := auth.UserFromContext(ctx)

	longLived, err := s.deps.Graph.ExchangeLongLivedToken(ctx, s.cfg.FacebookAppID, s.cfg.FacebookAppSecret, req.AccessToken)
	if err != nil {
		graphError(w, "Failed to exchange access token", err)
		return
	}

	pages, err := s.deps.Graph.ListPages(ctx, longLived.AccessToken)
	if err != nil {
		graphError(w, "Failed to fetch Facebook pages", err)
		return
	}

	selected := make(map[string]bool, len(req.SelectedAccounts))
	for _, a := range req.SelectedAccounts {
		selected[a.InstagramID] = true
	}
	var chosen []instagram.Page
	for _, p := range instagram.BusinessPages(pages) {
		if selected[p.InstagramBusinessAccount.ID] {
			chosen = append(chosen, p)
		}
	}
	if len(chosen) == 0 {
		httpError(w, http.StatusBadRequest, "None of the selected accounts were found on this Facebook login")
		return
	}

	saved := make([]store.Account, 0, len(chosen))
	var failures []string
	for _, p := range chosen {
		ig := p.InstagramBusinessAccount

		pageToken, err := s.deps.Graph.PageAccessToken(ctx, p.ID, longLived.AccessToken)
		if err != nil || pageToken == "" {
			log.Warn().Err(err).Str("pageId", p.ID).Msg("Page token lookup failed, using listed token")
			pageToken = p.AccessToken
		}
		if pageToken == "" {
			failures = append(failures, fmt.Sprintf("%s: no page access token", ig.Username))
			continue
		}

		acc, err := s.deps.Store.UpsertAccount(ctx, &store.Account{
			UserID:              userID,
			InstagramBusinessID: ig.ID,
			PageID:              p.ID,
			AccessToken:         pageToken,
			Username:            ig.Username,
			AvatarURL:           ig.ProfilePictureURL,
		})
		if err != nil {
			log.Error().Err(err).Str("instagramId", ig.ID).Msg("Failed to save account")
			failures = append(failures, fmt.Sprintf("%s: failed to save", ig.Username))
			continue
		}
		saved = append(saved, *acc)
	}

	if len(saved) == 0 {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  "Failed to save any account",
			"errors": failures,
		})
		return
	}

	log.Info().Str("userId", userID).Int("saved", len(saved)).Int("failed", len(failures)).Msg("Instagram accounts linked")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"accounts": saved,
		"errors":   failures,
	})
}

// GET /api/instagram/accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Store.ListAccounts(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "Failed to load accounts", err.Error())
		return
	}
	if accounts == nil {
		accounts = []store.Account{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// DELETE /api/instagram/accounts/{id}
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.deps.Store.DeleteAccount(r.Context(), id, auth.UserFromContext(r.Context()))
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpError(w, http.StatusNotFound, "Account not found")
		return
	case err != nil:
		httpError(w, http.StatusInternalServerError, "Failed to disconnect account", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// graphError reports a Graph API failure. Errors the Graph API itself
// returned are the caller's to fix (bad or expired token), so they surface
// as 400 with the API message; transport failures are 502.
func graphError(w http.ResponseWriter, clientMsg string, err error) {
	var apiErr *instagram.APIError
	if errors.As(err, &apiErr) {
		httpError(w, http.StatusBadRequest, clientMsg+": "+apiErr.Message, err.Error())
		return
	}
	httpError(w, http.StatusBadGateway, clientMsg, err.Error())
}
