package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/novalabs/wa-reporting/internal/domain/auth"
	apperrors "github.com/novalabs/wa-reporting/internal/errors"
)

func TestRequireSession_RedirectsBrowserToLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/reports")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login?redirect_uri=%2Freports", rr.Header().Get("Location"))
}

func TestRequireSession_APIGetsJSON401(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodPost, "/api/reports/makerschool", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "authentication_required")
}

func TestRequireSession_RejectsUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/reports", &http.Cookie{Name: sessionCookieName, Value: "no-such-session"})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestRequireReportAccess_Denied(t *testing.T) {
	env := newTestEnv(t)
	env.provider.CheckReportAccessFunc = func(context.Context, domainauth.UserToken, domainauth.ServiceToken) (bool, error) {
		return false, nil
	}
	cookie := env.login(t)

	rr := env.get("/reports", cookie)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Not authorized")
}

func TestRequireReportAccess_CheckFailureSurfacesError(t *testing.T) {
	env := newTestEnv(t)
	env.provider.CheckReportAccessFunc = func(context.Context, domainauth.UserToken, domainauth.ServiceToken) (bool, error) {
		return false, apperrors.AccessCheck("profile lookup failed with status 500")
	}
	cookie := env.login(t)

	rr := env.get("/reports", cookie)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "profile lookup failed with status 500")
	assert.NotContains(t, rr.Body.String(), "Not authorized")
}

func TestRequireReportAccess_DecisionCachedAcrossRequests(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	require.Equal(t, http.StatusOK, env.get("/reports", cookie).Code)
	require.Equal(t, http.StatusOK, env.get("/reports", cookie).Code)

	assert.Equal(t, 1, env.provider.AccessCheckCalls())
}

func TestRecover_TurnsPanicInto500(t *testing.T) {
	handler := Recover(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestLogging_PreservesStatus(t *testing.T) {
	handler := Logging(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
