package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/novalabs/wa-reporting/internal/domain/auth"
	apperrors "github.com/novalabs/wa-reporting/internal/errors"
	mockauth "github.com/novalabs/wa-reporting/internal/mocks/auth"
)

func newTestAuthService() (*AuthService, *mockauth.MockOAuthProvider, *mockauth.MemorySessionStore) {
	provider := mockauth.NewMockOAuthProvider()
	sessions := mockauth.NewMemorySessionStore()
	svc := NewAuthService(AuthServiceOptions{
		Provider:   provider,
		Sessions:   sessions,
		SessionTTL: time.Hour,
	})
	return svc, provider, sessions
}

func TestAuthService_BeginLogin(t *testing.T) {
	svc, provider, _ := newTestAuthService()
	provider.BeginLoginFunc = func(context.Context) (string, string, error) {
		return "https://idp.example/auth?state=abc", "abc", nil
	}

	res, err := svc.BeginLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example/auth?state=abc", res.AuthURL)
	assert.Equal(t, "abc", res.State)
}

func TestAuthService_CompleteLogin(t *testing.T) {
	svc, _, sessions := newTestAuthService()

	session, err := svc.CompleteLogin(context.Background(), "code-123")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	assert.Equal(t, "user-token-for-code-123", session.UserToken.AccessToken)
	assert.Equal(t, "service-token-1", session.ServiceToken.AccessToken)
	assert.Nil(t, session.ReportAccess)

	stored, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ServiceToken, stored.ServiceToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), stored.ExpiresAt, 5*time.Second)
	assert.Equal(t, 1, sessions.Len())
}

func TestAuthService_CompleteLogin_ServiceTokenFailure(t *testing.T) {
	svc, provider, sessions := newTestAuthService()
	provider.FetchServiceTokenFunc = func(context.Context) (domainauth.ServiceToken, error) {
		return domainauth.ServiceToken{}, apperrors.ServiceTokenFailed(503)
	}

	_, err := svc.CompleteLogin(context.Background(), "code-123")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAuth, apperrors.GetCode(err))

	// No half-logged-in session may survive a service token failure.
	assert.Equal(t, 0, sessions.Len())
}

func TestAuthService_EnsureReportAccess_CachesDecision(t *testing.T) {
	svc, provider, _ := newTestAuthService()

	session, err := svc.CompleteLogin(context.Background(), "code-123")
	require.NoError(t, err)

	granted, err := svc.EnsureReportAccess(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 1, provider.AccessCheckCalls())

	// The cached decision is persisted and short-circuits the next check,
	// even through a fresh session load.
	reloaded, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ReportAccess)

	granted, err = svc.EnsureReportAccess(context.Background(), reloaded)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 1, provider.AccessCheckCalls())
}

func TestAuthService_EnsureReportAccess_FailureLeavesDecisionUnset(t *testing.T) {
	svc, provider, _ := newTestAuthService()
	provider.CheckReportAccessFunc = func(context.Context, domainauth.UserToken, domainauth.ServiceToken) (bool, error) {
		return false, apperrors.Wrap(errors.New("upstream 500"), apperrors.ErrCodeAccessCheck, "who-am-i lookup failed")
	}

	session, err := svc.CompleteLogin(context.Background(), "code-123")
	require.NoError(t, err)

	_, err = svc.EnsureReportAccess(context.Background(), session)
	require.Error(t, err)
	assert.True(t, apperrors.IsAccessCheck(err))
	assert.Nil(t, session.ReportAccess)

	// A later successful check still runs and caches.
	provider.CheckReportAccessFunc = nil
	granted, err := svc.EnsureReportAccess(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, granted)
	require.NotNil(t, session.ReportAccess)
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, sessions := newTestAuthService()

	session, err := svc.CompleteLogin(context.Background(), "code-123")
	require.NoError(t, err)
	require.Equal(t, 1, sessions.Len())

	require.NoError(t, svc.Logout(context.Background(), session.ID))
	assert.Equal(t, 0, sessions.Len())

	// Logging out an empty session id is a no-op.
	require.NoError(t, svc.Logout(context.Background(), ""))
}

func TestSessionTokenSource_TokenUsesStoredToken(t *testing.T) {
	svc, provider, _ := newTestAuthService()

	session, err := svc.CompleteLogin(context.Background(), "code-123")
	require.NoError(t, err)
	mintsAfterLogin := provider.ServiceTokenCalls()

	ts := svc.TokenSource(session.ID)
	token, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ServiceToken, token)

	// The stored token satisfies Token without minting a new one.
	assert.Equal(t, mintsAfterLogin, provider.ServiceTokenCalls())
}

func TestSessionTokenSource_RefreshWritesThrough(t *testing.T) {
	svc, _, _ := newTestAuthService()

	session, err := svc.CompleteLogin(context.Background(), "code-123")
	require.NoError(t, err)

	ts := svc.TokenSource(session.ID)
	refreshed, err := ts.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, session.ServiceToken.AccessToken, refreshed.AccessToken)

	stored, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, refreshed, stored.ServiceToken)

	// The refreshed token is now the cached answer.
	token, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refreshed, token)
}

func TestSessionTokenSource_RefreshFailureClearsSession(t *testing.T) {
	svc, provider, sessions := newTestAuthService()

	session, err := svc.CompleteLogin(context.Background(), "code-123")
	require.NoError(t, err)

	provider.FetchServiceTokenFunc = func(context.Context) (domainauth.ServiceToken, error) {
		return domainauth.ServiceToken{}, apperrors.ServiceTokenFailed(401)
	}

	ts := svc.TokenSource(session.ID)
	_, err = ts.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, sessions.Len(), "session must be cleared when the service credential breaks")

	// With the session gone and the cache cleared, Token cannot recover.
	_, err = ts.Token(context.Background())
	require.Error(t, err)
}
