package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExchangeLongLivedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/access_token" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("grant_type") != "fb_exchange_token" {
			t.Errorf("unexpected grant_type: %s", q.Get("grant_type"))
		}
		if q.Get("client_id") != "app" || q.Get("client_secret") != "secret" || q.Get("fb_exchange_token") != "short" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "long",
			"token_type":   "bearer",
			"expires_in":   5184000,
		})
	}))
	defer server.Close()

	tok, err := newTestClient(server).ExchangeLongLivedToken(context.Background(), "app", "secret", "short")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "long" || tok.ExpiresIn != 5184000 {
		t.Errorf("unexpected token: %+v", tok)
	}
}

func TestExchangeLongLivedToken_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(tokenResponse{Error: &APIError{Message: "Error validating access token", Code: 190}})
	}))
	defer server.Close()

	_, err := newTestClient(server).ExchangeLongLivedToken(context.Background(), "app", "secret", "expired")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 190 {
		t.Fatalf("expected API error 190, got %v", err)
	}
}

func TestListPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/accounts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("fields") != pageFields {
			t.Errorf("unexpected fields: %s", r.URL.Query().Get("fields"))
		}
		w.Write([]byte(`{"data":[
			{"id":"p1","name":"Cafe","access_token":"pt1","instagram_business_account":{"id":"ig-1","username":"cafe","profile_picture_url":"https://img/1"}},
			{"id":"p2","name":"No IG","access_token":"pt2"}
		]}`))
	}))
	defer server.Close()

	pages, err := newTestClient(server).ListPages(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}

	business := BusinessPages(pages)
	if len(business) != 1 {
		t.Fatalf("expected 1 business page, got %d", len(business))
	}
	ig := business[0].InstagramBusinessAccount
	if ig.ID != "ig-1" || ig.Username != "cafe" || ig.ProfilePictureURL != "https://img/1" {
		t.Errorf("unexpected business account: %+v", ig)
	}
}

func TestPageAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/p1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("fields") != "access_token" {
			t.Errorf("unexpected fields: %s", r.URL.Query().Get("fields"))
		}
		json.NewEncoder(w).Encode(pageTokenResponse{ID: "p1", AccessToken: "page-token"})
	}))
	defer server.Close()

	tok, err := newTestClient(server).PageAccessToken(context.Background(), "p1", "long")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "page-token" {
		t.Errorf("expected page-token, got %s", tok)
	}
}
