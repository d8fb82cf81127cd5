// Package wildapricot provides the OAuth client and paginated fetcher for the
// Wild Apricot membership API.
package wildapricot

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/novalabs/wa-reporting/config"
	domainauth "github.com/novalabs/wa-reporting/internal/domain/auth"
	apperrors "github.com/novalabs/wa-reporting/internal/errors"
)

// Provider implements ports.OAuthProvider against the Wild Apricot
// authorization and token endpoints. The same token endpoint serves both
// grants: authorization-code for the member and client-credentials (HTTP
// Basic "APIKEY:<key>", scope "auto") for the application.
type Provider struct {
	cfg        config.WildApricotConfig
	oauth      *oauth2.Config
	service    *clientcredentials.Config
	httpClient *http.Client
	logger     *slog.Logger

	// signoffLabels extracts the label list of the signoff field from a
	// profile-detail payload.
	signoffLabels jmespath.JMESPath
}

// ProviderOptions holds configuration for the Wild Apricot provider.
type ProviderOptions struct {
	Config     config.WildApricotConfig
	HTTPClient *http.Client // Optional, defaults to a 30s-timeout client
	Logger     *slog.Logger // Optional
}

// NewProvider creates a new Wild Apricot OAuth provider.
func NewProvider(opts ProviderOptions) (*Provider, error) {
	cfg := opts.Config
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	labels, err := jmespath.Compile(fmt.Sprintf(
		"FieldValues[?FieldName=='%s'] | [0].Value[].Label", cfg.SignoffField))
	if err != nil {
		return nil, fmt.Errorf("compile signoff expression: %w", err)
	}

	return &Provider{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		service: &clientcredentials.Config{
			ClientID:     "APIKEY",
			ClientSecret: cfg.APIKey,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{"auto"},
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient:    httpClient,
		logger:        logger,
		signoffLabels: labels,
	}, nil
}

// BeginLogin returns the provider authorization URL and the opaque state the
// callback must echo back.
func (p *Provider) BeginLogin(_ context.Context) (string, string, error) {
	state, err := generateRandomString(32)
	if err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}
	return p.oauth.AuthCodeURL(state), state, nil
}

// CompleteLogin exchanges an authorization code for a user token.
func (p *Provider) CompleteLogin(ctx context.Context, code string) (domainauth.UserToken, error) {
	if code == "" {
		return domainauth.UserToken{}, apperrors.Auth("authorization code not received in callback")
	}

	tok, err := p.oauth.Exchange(p.oauthContext(ctx), code)
	if err != nil {
		return domainauth.UserToken{}, apperrors.Wrap(err, apperrors.ErrCodeAuth, "token exchange failed")
	}

	return domainauth.UserToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// FetchServiceToken performs the client-credentials grant. Any previously
// held service token is the caller's to discard; this always mints fresh.
func (p *Provider) FetchServiceToken(ctx context.Context) (domainauth.ServiceToken, error) {
	tok, err := p.service.Token(p.oauthContext(ctx))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return domainauth.ServiceToken{}, apperrors.ServiceTokenFailed(retrieveErr.Response.StatusCode)
		}
		return domainauth.ServiceToken{}, apperrors.Wrap(err, apperrors.ErrCodeAuth, "service token request failed")
	}

	p.logger.DebugContext(ctx, "service token obtained")
	return domainauth.ServiceToken{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
	}, nil
}

// CheckReportAccess resolves the member behind the user token and reports
// whether their profile carries the reporting signoff label. The user token
// drives the who-am-I lookup; the service token drives the profile-detail
// lookup (field values included).
func (p *Provider) CheckReportAccess(
	ctx context.Context,
	user domainauth.UserToken,
	service domainauth.ServiceToken,
) (bool, error) {
	contactID, err := p.whoAmI(ctx, user)
	if err != nil {
		return false, err
	}

	profile, err := p.contactDetail(ctx, service, contactID)
	if err != nil {
		return false, err
	}

	raw, err := p.signoffLabels.Search(profile)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeAccessCheck, "extract signoff labels")
	}

	// Absent or empty signoff field means no access, not an error.
	labels, ok := raw.([]any)
	if !ok {
		return false, nil
	}
	for _, l := range labels {
		if s, ok := l.(string); ok && s == p.cfg.SignoffLabel {
			return true, nil
		}
	}
	return false, nil
}

func (p *Provider) whoAmI(ctx context.Context, user domainauth.UserToken) (int64, error) {
	var me struct {
		ID json.Number `json:"Id"`
	}
	status, err := p.getJSON(ctx, p.cfg.APIBaseURL+"/contacts/me", user.AccessToken, &me)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeAccessCheck, "who-am-I lookup failed")
	}
	if status != http.StatusOK {
		return 0, apperrors.AccessCheckf("who-am-I lookup failed with status %d", status)
	}

	id, err := me.ID.Int64()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeAccessCheck, "who-am-I returned no contact id")
	}
	return id, nil
}

func (p *Provider) contactDetail(
	ctx context.Context,
	service domainauth.ServiceToken,
	contactID int64,
) (map[string]any, error) {
	url := fmt.Sprintf("%s/accounts/%s/contacts/%d?includeFieldValues=true",
		p.cfg.APIBaseURL, p.cfg.AccountID, contactID)

	var profile map[string]any
	status, err := p.getJSON(ctx, url, service.AccessToken, &profile)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAccessCheck, "profile lookup failed")
	}
	if status != http.StatusOK {
		return nil, apperrors.AccessCheckf("profile lookup failed with status %d", status)
	}
	return profile, nil
}

func (p *Provider) getJSON(ctx context.Context, url, bearer string, dst any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// oauthContext pins the oauth2 library to the provider's HTTP client.
func (p *Provider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// generateRandomString generates a cryptographically secure URL-safe random
// string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		return "", errors.New("short random read")
	}
	return s[:length], nil
}
