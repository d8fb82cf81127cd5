package httpx

import (
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/novalabs/wa-reporting/internal/domain/model"
	"github.com/novalabs/wa-reporting/internal/jobs"
	mockauth "github.com/novalabs/wa-reporting/internal/mocks/auth"
	mockfetch "github.com/novalabs/wa-reporting/internal/mocks/fetch"
	"github.com/novalabs/wa-reporting/internal/ports"
	"github.com/novalabs/wa-reporting/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires a full router over in-memory doubles.
type testEnv struct {
	router   http.Handler
	provider *mockauth.MockOAuthProvider
	sessions *mockauth.MemorySessionStore
	auth     *service.AuthService
	table    *jobs.Table
	fetcher  *mockfetch.StubFetcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		provider: mockauth.NewMockOAuthProvider(),
		sessions: mockauth.NewMemorySessionStore(),
		table:    jobs.NewTable(jobs.TableOptions{Workers: 2, Timeout: 5 * time.Second, TTL: time.Hour}),
		fetcher: &mockfetch.StubFetcher{
			Handler: func(context.Context, model.PageRequest) (model.FetchResult, error) {
				return model.FetchResult{Shape: model.ShapeList}, nil
			},
		},
	}
	env.auth = service.NewAuthService(service.AuthServiceOptions{
		Provider:   env.provider,
		Sessions:   env.sessions,
		SessionTTL: time.Hour,
	})

	router, err := NewRouter(RouterServices{
		Auth:    env.auth,
		Reports: service.NewReportService(service.ReportServiceOptions{}),
		Jobs:    env.table,
		Fetchers: func(string) ports.Fetcher {
			return env.fetcher
		},
		Logger: testLogger(),
	})
	require.NoError(t, err)
	env.router = router
	return env
}

// login creates a session directly through the auth service and returns its
// cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	session, err := e.auth.CompleteLogin(context.Background(), "test-code")
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: session.ID}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (e *testEnv) postForm(path, form string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies...)
}

// pollUntilSettled follows the browser poll endpoint until the job leaves the
// pending page.
func (e *testEnv) pollUntilSettled(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rr := e.get(path, cookie)
		if !strings.Contains(rr.Body.String(), "refreshes automatically") {
			return rr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never settled")
	return nil
}

// rosterUpload builds a multipart body carrying a roster CSV.
func rosterUpload(t *testing.T, csv string) (io.Reader, string) {
	t.Helper()
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("roster", "roster.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return strings.NewReader(buf.String()), mw.FormDataContentType()
}
