// Account linking against the Facebook Graph API.
//
// A user connects by granting a short-lived Facebook user token. The service
// exchanges it for a long-lived token, lists the Facebook Pages the user
// manages, and stores one page access token per Instagram Business account
// the user selects.

package instagram

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
)

// LongLivedToken is the result of a fb_exchange_token grant.
type LongLivedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64 // seconds; 0 when the API omits it
}

// BusinessAccount is the Instagram Business account attached to a Page.
type BusinessAccount struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Name              string `json:"name,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

// Page is a Facebook Page returned by /me/accounts.
type Page struct {
	ID                       string           `json:"id"`
	Name                     string           `json:"name"`
	AccessToken              string           `json:"access_token"`
	InstagramBusinessAccount *BusinessAccount `json:"instagram_business_account,omitempty"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	Error       *APIError `json:"error,omitempty"`
}

type pagesResponse struct {
	Data  []Page    `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

type pageTokenResponse struct {
	ID          string    `json:"id"`
	AccessToken string    `json:"access_token"`
	Error       *APIError `json:"error,omitempty"`
}

const pageFields = "id,name,access_token,instagram_business_account{id,username,profile_picture_url,name}"

// ExchangeLongLivedToken trades a short-lived user token for a long-lived one.
//
// Endpoint: GET /oauth/access_token?grant_type=fb_exchange_token
//
//	&client_id={app_id}&client_secret={app_secret}&fb_exchange_token={token}
func (c *Client) ExchangeLongLivedToken(ctx context.Context, appID, appSecret, shortToken string) (*LongLivedToken, error) {
	log.Debug().Msg("Exchanging short-lived token for long-lived token")

	var resp tokenResponse
	err := c.getJSON(ctx, "/oauth/access_token", url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {appID},
		"client_secret":     {appSecret},
		"fb_exchange_token": {shortToken},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("long-lived token exchange: %w", err)
	}
	if resp.Error != nil {
		return nil, logAPIError("long-lived token exchange", resp.Error)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("long-lived token exchange: no access token in response")
	}

	log.Info().Int64("expiresInDays", resp.ExpiresIn/86400).Msg("Long-lived token obtained")
	return &LongLivedToken{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
	}, nil
}

// ListPages returns every Page the token's user manages, with the linked
// Instagram Business account when there is one.
func (c *Client) ListPages(ctx context.Context, userToken string) ([]Page, error) {
	var resp pagesResponse
	err := c.getJSON(ctx, "/me/accounts", url.Values{
		"fields":       {pageFields},
		"access_token": {userToken},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if resp.Error != nil {
		return nil, logAPIError("list pages", resp.Error)
	}

	log.Debug().Int("pages", len(resp.Data)).Msg("Facebook pages listed")
	return resp.Data, nil
}

// BusinessPages filters pages down to those with an Instagram Business account.
func BusinessPages(pages []Page) []Page {
	var out []Page
	for _, p := range pages {
		if p.InstagramBusinessAccount != nil && p.InstagramBusinessAccount.ID != "" {
			out = append(out, p)
		}
	}
	return out
}

// PageAccessToken fetches the page-scoped token for pageID using a
// long-lived user token. Page tokens derived this way do not expire.
func (c *Client) PageAccessToken(ctx context.Context, pageID, userToken string) (string, error) {
	var resp pageTokenResponse
	err := c.getJSON(ctx, "/"+url.PathEscape(pageID), url.Values{
		"fields":       {"access_token"},
		"access_token": {userToken},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("page access token %s: %w", pageID, err)
	}
	if resp.Error != nil {
		return "", logAPIError("page access token", resp.Error)
	}
	return resp.AccessToken, nil
}
