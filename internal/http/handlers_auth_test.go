package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/novalabs/wa-reporting/internal/domain/auth"
	apperrors "github.com/novalabs/wa-reporting/internal/errors"
)

func cookieByName(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/auth/login?redirect_uri=/reports")

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://mock-idp/auth", rr.Header().Get("Location"))

	state := cookieByName(rr, stateCookieName)
	require.NotNil(t, state)
	assert.Equal(t, "state-1", state.Value)
	assert.True(t, state.HttpOnly)

	redirect := cookieByName(rr, redirectCookieName)
	require.NotNil(t, redirect)
	assert.Equal(t, "/reports", redirect.Value)
}

func TestCallback_CompletesLogin(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state=state-1", nil)
	rr := env.do(req,
		&http.Cookie{Name: stateCookieName, Value: "state-1"},
		&http.Cookie{Name: redirectCookieName, Value: "/reports"},
	)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/reports", rr.Header().Get("Location"))

	session := cookieByName(rr, sessionCookieName)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.Value)
	assert.Equal(t, 1, env.sessions.Len())

	// The state cookie is single-use.
	state := cookieByName(rr, stateCookieName)
	require.NotNil(t, state)
	assert.Empty(t, state.Value)
}

func TestCallback_RejectsMismatchedState(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state=forged", nil)
	rr := env.do(req, &http.Cookie{Name: stateCookieName, Value: "state-1"})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "state did not match")
	assert.Equal(t, 0, env.sessions.Len())
}

func TestCallback_RejectsMissingStateCookie(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/auth/callback?code=the-code&state=state-1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCallback_SurfacesServiceTokenFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.FetchServiceTokenFunc = func(context.Context) (domainauth.ServiceToken, error) {
		return domainauth.ServiceToken{}, apperrors.ServiceTokenFailed(http.StatusServiceUnavailable)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state=state-1", nil)
	rr := env.do(req, &http.Cookie{Name: stateCookieName, Value: "state-1"})

	require.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "upstream status 503")
	assert.Equal(t, 0, env.sessions.Len())
	assert.Nil(t, cookieByName(rr, sessionCookieName))
}

func TestLogout_ClearsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	require.Equal(t, 1, env.sessions.Len())

	rr := env.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), cookie)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))
	assert.Equal(t, 0, env.sessions.Len())

	cleared := cookieByName(rr, sessionCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}
