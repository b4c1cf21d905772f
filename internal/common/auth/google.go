// internal/common/auth/google.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tripgen/internal/common/errors"

	"golang.org/x/oauth2"
)

const defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var googleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// GoogleProfile is the subset of the OpenID userinfo response we keep.
type GoogleProfile struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleClient runs the authorization code flow against Google.
type GoogleClient struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func NewGoogleClient(clientID, clientSecret, redirectURL, userInfoURL string) *GoogleClient {
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}
	return &GoogleClient{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     googleEndpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: userInfoURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthCodeURL is the consent page the browser is sent to.
func (g *GoogleClient) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for the user's profile.
func (g *GoogleClient) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.NewGoogleOAuthError(fmt.Errorf("exchange code: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, errors.NewGoogleOAuthError(err)
	}
	resp, err := g.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, errors.NewGoogleOAuthError(fmt.Errorf("fetch userinfo: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.NewGoogleOAuthError(fmt.Errorf("userinfo status %d: %s", resp.StatusCode, string(body)))
	}

	var profile GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, errors.NewGoogleOAuthError(fmt.Errorf("decode userinfo: %w", err))
	}
	if err := validateProfile(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func validateProfile(p *GoogleProfile) error {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Sub == "" || p.Email == "" {
		return errors.NewGoogleOAuthError(fmt.Errorf("profile is missing sub or email"))
	}
	if !p.EmailVerified {
		return errors.NewForbiddenError("Google account email is not verified")
	}
	if p.Name == "" {
		p.Name = strings.SplitN(p.Email, "@", 2)[0]
	}
	return nil
}
