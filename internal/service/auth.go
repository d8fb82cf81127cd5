package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/novalabs/wa-reporting/internal/domain/auth"
	"github.com/novalabs/wa-reporting/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider   ports.OAuthProvider
	Sessions   ports.SessionStore
	SessionTTL time.Duration
	Logger     *slog.Logger
}

// AuthService orchestrates the login flow and owns session lifecycle: the
// user token, the application service token, and the cached report-access
// decision all live on the session.
type AuthService struct {
	provider   ports.OAuthProvider
	sessions   ports.SessionStore
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		provider:   opts.Provider,
		sessions:   opts.Sessions,
		sessionTTL: ttl,
		logger:     logger,
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
}

// BeginLogin initiates the authorization-code flow and returns the provider
// auth URL with the state to verify on callback.
func (s *AuthService) BeginLogin(ctx context.Context) (*BeginLoginResult, error) {
	authURL, state, err := s.provider.BeginLogin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state}, nil
}

// CompleteLogin exchanges the authorization code for a user token, mints the
// application service token, and persists the session. A service-token
// failure is fatal: no session is created and the member must retry login.
func (s *AuthService) CompleteLogin(ctx context.Context, code string) (*domainauth.Session, error) {
	userToken, err := s.provider.CompleteLogin(ctx, code)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "user token received")

	serviceToken, err := s.provider.FetchServiceToken(ctx)
	if err != nil {
		return nil, err
	}

	session := domainauth.Session{
		ID:           uuid.NewString(),
		UserToken:    userToken,
		ServiceToken: serviceToken,
		ExpiresAt:    time.Now().Add(s.sessionTTL),
	}
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}

	return &session, nil
}

// GetSession retrieves a session by ID.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// EnsureReportAccess returns the session's report-access decision, computing
// and caching it on first use. A lookup failure leaves the decision unset so
// it is re-checked on the next request, and propagates to the caller as an
// access-check failure distinct from "not authorized".
func (s *AuthService) EnsureReportAccess(ctx context.Context, session *domainauth.Session) (bool, error) {
	if session.ReportAccess != nil {
		return *session.ReportAccess, nil
	}

	granted, err := s.provider.CheckReportAccess(ctx, session.UserToken, session.ServiceToken)
	if err != nil {
		return false, err
	}

	session.ReportAccess = &granted
	if saveErr := s.sessions.Save(ctx, *session); saveErr != nil {
		return false, fmt.Errorf("save session: %w", saveErr)
	}
	s.logger.DebugContext(ctx, "report access checked", "granted", granted)
	return granted, nil
}

// Logout removes a session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// TokenSource returns the service-token provider for one session, for wiring
// into a fetcher. Refreshes are serialized and write through to the session
// store; a failed refresh clears the session entirely, since a broken service
// credential invalidates the whole login.
func (s *AuthService) TokenSource(sessionID string) ports.TokenProvider {
	return &sessionTokenSource{auth: s, sessionID: sessionID}
}

type sessionTokenSource struct {
	auth      *AuthService
	sessionID string

	mu     sync.Mutex
	cached domainauth.ServiceToken
}

func (ts *sessionTokenSource) Token(ctx context.Context) (domainauth.ServiceToken, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.cached.IsZero() {
		return ts.cached, nil
	}

	session, err := ts.auth.sessions.Get(ctx, ts.sessionID)
	if err != nil {
		return domainauth.ServiceToken{}, fmt.Errorf("get session: %w", err)
	}
	if !session.ServiceToken.IsZero() {
		ts.cached = session.ServiceToken
		return ts.cached, nil
	}
	return ts.refreshLocked(ctx)
}

func (ts *sessionTokenSource) Refresh(ctx context.Context) (domainauth.ServiceToken, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refreshLocked(ctx)
}

func (ts *sessionTokenSource) refreshLocked(ctx context.Context) (domainauth.ServiceToken, error) {
	token, err := ts.auth.provider.FetchServiceToken(ctx)
	if err != nil {
		// Fail fast: a broken service credential invalidates the session.
		if logoutErr := ts.auth.Logout(ctx, ts.sessionID); logoutErr != nil {
			ts.auth.logger.Warn("clear session after service token failure", "error", logoutErr)
		}
		ts.cached = domainauth.ServiceToken{}
		return domainauth.ServiceToken{}, err
	}

	session, getErr := ts.auth.sessions.Get(ctx, ts.sessionID)
	if getErr == nil {
		session.ServiceToken = token
		if saveErr := ts.auth.sessions.Save(ctx, session); saveErr != nil {
			ts.auth.logger.Warn("persist refreshed service token", "error", saveErr)
		}
	}

	ts.cached = token
	return token, nil
}
