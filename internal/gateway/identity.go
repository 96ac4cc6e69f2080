package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iliyamo/homewatch/internal/account"
	"github.com/iliyamo/homewatch/internal/repository"
)

// DefaultTokenInfoURL is Google's id token introspection endpoint.
const DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

const identityService = "google-tokeninfo"

type tokenInfo struct {
	Aud           string `json:"aud"`
	Iss           string `json:"iss"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// GoogleVerifier checks Google id tokens against the tokeninfo endpoint.
type GoogleVerifier struct {
	http     *resty.Client
	url      string
	clientID string
}

// NewGoogleVerifier builds a verifier.  An empty clientID skips the
// audience check.
func NewGoogleVerifier(url, clientID string, timeout time.Duration) *GoogleVerifier {
	if url == "" {
		url = DefaultTokenInfoURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		AddRetryCondition(retryOnServerError).
		SetHeader("Accept", "application/json")
	return &GoogleVerifier{http: client, url: url, clientID: clientID}
}

// Verify returns the identity carried by idToken.  A token Google rejects
// is ErrUnauthenticated; an unreachable endpoint is ErrGatewayFailure.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*account.Identity, error) {
	started := time.Now()
	defer observe(identityService, "verify", started)

	var info tokenInfo
	resp, err := v.http.R().
		SetContext(ctx).
		SetQueryParam("id_token", idToken).
		SetResult(&info).
		Get(v.url)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", identityService, err, repository.ErrGatewayFailure)
	}
	switch {
	case resp.StatusCode() >= 500:
		return nil, fmt.Errorf("%s: status %d: %w", identityService, resp.StatusCode(), repository.ErrGatewayFailure)
	case resp.IsError():
		return nil, fmt.Errorf("id token rejected: %w", repository.ErrUnauthenticated)
	}

	if v.clientID != "" && info.Aud != v.clientID {
		return nil, fmt.Errorf("id token audience %q: %w", info.Aud, repository.ErrUnauthenticated)
	}
	if info.Email == "" || info.EmailVerified != "true" {
		return nil, fmt.Errorf("id token without verified email: %w", repository.ErrUnauthenticated)
	}
	return &account.Identity{
		Email:      strings.ToLower(info.Email),
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
	}, nil
}
