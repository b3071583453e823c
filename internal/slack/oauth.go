package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OAuthClient performs token refreshes against Slack's oauth.v2.access
// endpoint for installations enrolled in token rotation.
type OAuthClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
}

// NewOAuthClient creates an OAuth client. timeout bounds the refresh call.
func NewOAuthClient(baseURL, clientID, clientSecret string, timeout time.Duration) *OAuthClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OAuthClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

// RefreshedToken is the result of a successful token refresh.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Refresh exchanges a refresh token for a new token pair.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (RefreshedToken, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth.v2.access", strings.NewReader(form.Encode()))
	if err != nil {
		return RefreshedToken{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return RefreshedToken{}, fmt.Errorf("token refresh request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result struct {
		OK           bool   `json:"ok"`
		Error        string `json:"error"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RefreshedToken{}, fmt.Errorf("decode token refresh response: %w", err)
	}
	if !result.OK {
		return RefreshedToken{}, fmt.Errorf("token refresh rejected: %s", result.Error)
	}

	refreshed := RefreshedToken{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}
	if result.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
		refreshed.ExpiresAt = &expiresAt
	}
	return refreshed, nil
}
