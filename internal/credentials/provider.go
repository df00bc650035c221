// Package credentials mints and caches Google service-account access tokens.
package credentials

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/metrics"
)

const (
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// assertionLifetime is the validity window claimed in the signed JWT,
	// the maximum Google accepts.
	assertionLifetime = time.Hour

	// expiryMargin is subtracted from the token lifetime so a token is
	// refreshed before it can expire mid-request.
	expiryMargin = 60 * time.Second
)

// DefaultScopes cover Vertex AI calls and read/write access to Cloud Storage.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/devstorage.read_write",
}

// ServiceAccount holds the fields of a Google service-account key file that
// are needed to mint access tokens.
type ServiceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// ParseServiceAccount parses a service-account key from its JSON form.
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, &domain.AuthError{Reason: "parse key file", Err: err}
	}
	if sa.ClientEmail == "" {
		return nil, &domain.AuthError{Reason: "key file missing client_email"}
	}
	if sa.PrivateKey == "" {
		return nil, &domain.AuthError{Reason: "key file missing private_key"}
	}
	if sa.TokenURI == "" {
		sa.TokenURI = defaultTokenURI
	}
	return &sa, nil
}

// LoadServiceAccount reads and parses a service-account key file from disk.
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.AuthError{Reason: "read key file", Err: err}
	}
	return ParseServiceAccount(data)
}

// Options configures a Provider.
type Options struct {
	// Account is the parsed service-account key. Required.
	Account *ServiceAccount
	// Scopes requested for minted tokens. Defaults to DefaultScopes.
	Scopes []string
	// HTTPClient used for the token exchange. Defaults to a 30s-timeout client.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Provider exchanges a service-account key for bearer tokens and caches the
// result until shortly before expiry. It is safe for concurrent use; when the
// cached token is stale only one caller performs the refresh and the rest
// wait for its outcome.
type Provider struct {
	account *ServiceAccount
	scopes  []string
	client  *http.Client
	logger  zerolog.Logger
	key     *rsa.PrivateKey

	mu     sync.Mutex
	token  string
	expiry time.Time

	now func() time.Time
}

// NewProvider validates the options and builds a Provider. The private key is
// parsed eagerly so a malformed key file fails at startup, not on first use.
func NewProvider(opts Options) (*Provider, error) {
	if opts.Account == nil {
		return nil, &domain.AuthError{Reason: "service account is required"}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(opts.Account.PrivateKey))
	if err != nil {
		return nil, &domain.AuthError{Reason: "parse private key", Err: err}
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{
		account: opts.Account,
		scopes:  scopes,
		client:  client,
		logger:  opts.Logger,
		key:     key,
		now:     time.Now,
	}, nil
}

// ProjectID returns the project the service account belongs to.
func (p *Provider) ProjectID() string {
	return p.account.ProjectID
}

// Token returns a bearer token that is valid for at least the expiry margin.
// A cached token is reused; otherwise a refresh is performed while holding
// the provider lock so concurrent callers share a single token exchange.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.expiry) {
		return p.token, nil
	}

	token, lifetime, err := p.refresh(ctx)
	if err != nil {
		metrics.RecordTokenRefresh("error")
		return "", err
	}
	metrics.RecordTokenRefresh("ok")

	p.token = token
	p.expiry = p.now().Add(lifetime - expiryMargin)
	p.logger.Debug().
		Str("client_email", p.account.ClientEmail).
		Time("expiry", p.expiry).
		Msg("credentials: token refreshed")
	return p.token, nil
}

// Invalidate drops the cached token so the next Token call mints a new one.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expiry = time.Time{}
}

func (p *Provider) refresh(ctx context.Context) (string, time.Duration, error) {
	assertion, err := p.signAssertion()
	if err != nil {
		return "", 0, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &domain.AuthError{Reason: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, &domain.AuthError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, &domain.AuthError{Reason: "read token response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, &domain.AuthError{
			Reason: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, &domain.AuthError{Reason: "decode token response", Err: err}
	}
	if payload.AccessToken == "" {
		return "", 0, &domain.AuthError{Reason: "token response missing access_token"}
	}

	lifetime := time.Duration(payload.ExpiresIn) * time.Second
	if lifetime <= expiryMargin {
		lifetime = expiryMargin + time.Second
	}
	return payload.AccessToken, lifetime, nil
}

func (p *Provider) signAssertion() (string, error) {
	now := p.now()
	claims := jwt.MapClaims{
		"iss":   p.account.ClientEmail,
		"scope": strings.Join(p.scopes, " "),
		"aud":   p.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.key)
	if err != nil {
		return "", &domain.AuthError{Reason: "sign assertion", Err: err}
	}
	return signed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
