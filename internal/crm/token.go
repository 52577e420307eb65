package crm

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

const (
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	// assertionTTL is how long a signed assertion stays valid.
	assertionTTL = 3 * time.Minute
)

// LoadPrivateKey reads a PEM-encoded RSA private key.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crm: read key %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("crm: parse key %s: %w", path, err)
	}
	return key, nil
}

// Assertion signs the JWT-bearer assertion presented to the token endpoint.
func Assertion(key *rsa.PrivateKey, clientID, username, audience string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    clientID,
		Subject:   username,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("crm: sign assertion: %w", err)
	}
	return signed, nil
}

// jwtSource is an oauth2.TokenSource implementing the OAuth 2.0 JWT bearer
// flow against the Salesforce login endpoint.
type jwtSource struct {
	key      *rsa.PrivateKey
	clientID string
	username string
	loginURL string
	hc       *http.Client
	now      func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Token exchanges a fresh assertion for an access token. The instance URL is
// carried as token extra "instance_url".
func (s *jwtSource) Token() (*oauth2.Token, error) {
	now := s.now()
	assertion, err := Assertion(s.key, s.clientID, s.username, s.loginURL, now)
	if err != nil {
		return nil, err
	}

	form := url.Values{"grant_type": {jwtBearerGrant}, "assertion": {assertion}}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		strings.TrimRight(s.loginURL, "/")+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("crm: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: token request: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("crm: decode token response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || tr.AccessToken == "" {
		return nil, fmt.Errorf("crm: token request failed (%d): %s %s", resp.StatusCode, tr.Error, tr.Description)
	}

	tok := &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   "Bearer",
		// Salesforce does not report a lifetime; refresh well inside the
		// default session timeout.
		Expiry: now.Add(time.Hour),
	}
	return tok.WithExtra(map[string]interface{}{"instance_url": tr.InstanceURL}), nil
}
