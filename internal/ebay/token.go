package ebay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultOAuthURL = "https://api.ebay.com/identity/v1/oauth2/token"

// tokenCache holds an application OAuth token obtained via the
// client-credentials grant. The token is refreshed 60 seconds before its
// reported expiry; concurrent refreshes are harmless, the cache only has
// to be valid before every use.
type tokenCache struct {
	appID    string
	certID   string
	oauthURL string
	client   *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenCache(appID, certID, oauthURL string, client *http.Client) *tokenCache {
	if oauthURL == "" {
		oauthURL = defaultOAuthURL
	}
	return &tokenCache{appID: appID, certID: certID, oauthURL: oauthURL, client: client}
}

// Token returns a valid access token, requesting a fresh one when the
// cached token is missing or within a minute of expiry.
func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiresAt.Add(-60*time.Second)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"https://api.ebay.com/oauth/api_scope"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.appID + ":" + c.certID))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth token request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode oauth token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("oauth token response missing access_token")
	}

	c.token = payload.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.token, nil
}
