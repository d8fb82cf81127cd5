package wildapricot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/novalabs/wa-reporting/internal/domain/auth"
	"github.com/novalabs/wa-reporting/internal/domain/model"
	apperrors "github.com/novalabs/wa-reporting/internal/errors"
)

type stubTokens struct {
	mu         sync.Mutex
	token      string
	refreshes  int
	refreshErr error
}

func (s *stubTokens) Token(context.Context) (domainauth.ServiceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domainauth.ServiceToken{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func (s *stubTokens) Refresh(context.Context) (domainauth.ServiceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshErr != nil {
		return domainauth.ServiceToken{}, s.refreshErr
	}
	s.refreshes++
	s.token = fmt.Sprintf("refreshed-%d", s.refreshes)
	return domainauth.ServiceToken{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func (s *stubTokens) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// newTestFetcher builds a fetcher against the test server with backoff sleeps
// replaced by a recorder.
func newTestFetcher(t *testing.T, serverURL string, tokens *stubTokens, pageSize int) (*Fetcher, *[]time.Duration) {
	t.Helper()
	f, err := NewFetcher(FetcherOptions{
		BaseURL:          serverURL,
		AccountID:        "123",
		Tokens:           tokens,
		PageSize:         pageSize,
		RateLimitBackoff: 10 * time.Second,
		RateLimitRetries: 2,
	})
	require.NoError(t, err)

	var slept []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return f, &slept
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func skipParam(t *testing.T, r *http.Request) int {
	t.Helper()
	skip, err := strconv.Atoi(r.URL.Query().Get("$skip"))
	require.NoError(t, err)
	return skip
}

func TestFetcher_ObjectShapePaginationCorrectsCount(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		assert.Equal(t, "/accounts/123/Events", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("$async"))
		assert.Equal(t, "StartDate gt 2026-01-01", r.URL.Query().Get("$filter"))
		assert.Equal(t, "Bearer token-0", r.Header.Get("Authorization"))

		switch skipParam(t, r) {
		case 0:
			writeJSON(t, w, map[string]any{
				"Events": []map[string]any{{"Id": 1}, {"Id": 2}},
				"Count":  999,
			})
		case 2:
			writeJSON(t, w, map[string]any{
				"Events": []map[string]any{{"Id": 3}},
				"Count":  999,
			})
		default:
			t.Errorf("unexpected skip %q", r.URL.Query().Get("$skip"))
		}
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server.URL, &stubTokens{token: "token-0"}, 2)
	result, err := f.Fetch(context.Background(), model.PageRequest{
		Resource: "Events",
		Filter:   "StartDate gt 2026-01-01",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ShapeObject, result.Shape)
	assert.Equal(t, "Events", result.CollectionKey)
	assert.Len(t, result.Records(), 3)
	assert.Equal(t, 3, result.Object["Count"])
	assert.Len(t, requests, 2)
}

func TestFetcher_ListShapePagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("eventId"))
		switch skipParam(t, r) {
		case 0:
			writeJSON(t, w, []map[string]any{{"Id": 1}, {"Id": 2}})
		default:
			writeJSON(t, w, []map[string]any{{"Id": 3}})
		}
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server.URL, &stubTokens{token: "token-0"}, 2)
	result, err := f.Fetch(context.Background(), model.PageRequest{
		Resource: "EventRegistrations",
		EventID:  7,
	})
	require.NoError(t, err)

	assert.Equal(t, model.ShapeList, result.Shape)
	assert.Len(t, result.Records(), 3)
}

func TestFetcher_ExactPageSizeFinalPageCostsOneEmptyFetch(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if skipParam(t, r) == 0 {
			writeJSON(t, w, []map[string]any{{"Id": 1}, {"Id": 2}})
			return
		}
		writeJSON(t, w, []map[string]any{})
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server.URL, &stubTokens{token: "token-0"}, 2)
	result, err := f.Fetch(context.Background(), model.PageRequest{Resource: "Contacts"})
	require.NoError(t, err)

	assert.Len(t, result.Records(), 2)
	assert.Equal(t, 2, calls, "a full final page is only recognized by the empty page after it")
}

func TestFetcher_RawObjectReturnedImmediately(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, map[string]any{"Id": 42, "Name": "Nova Labs"})
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server.URL, &stubTokens{token: "token-0"}, 2)
	result, err := f.Fetch(context.Background(), model.PageRequest{Resource: "Account"})
	require.NoError(t, err)

	assert.Equal(t, model.ShapeRaw, result.Shape)
	assert.Equal(t, "Nova Labs", result.Object["Name"])
	assert.Nil(t, result.Records())
	assert.Equal(t, 1, calls)
}

func TestFetcher_UnauthorizedRefreshesOnceAndRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer refreshed-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, []map[string]any{{"Id": 1}})
	}))
	defer server.Close()

	tokens := &stubTokens{token: "stale"}
	f, _ := newTestFetcher(t, server.URL, tokens, 2)
	result, err := f.Fetch(context.Background(), model.PageRequest{Resource: "Contacts"})
	require.NoError(t, err)

	assert.Len(t, result.Records(), 1)
	assert.Equal(t, 1, tokens.refreshCount())
}

func TestFetcher_UnauthorizedTwiceFailsFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &stubTokens{token: "stale"}
	f, _ := newTestFetcher(t, server.URL, tokens, 2)
	_, err := f.Fetch(context.Background(), model.PageRequest{Resource: "Contacts"})

	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.Equal(t, http.StatusUnauthorized, apperrors.GetStatusCode(err))
	assert.Equal(t, 1, tokens.refreshCount(), "only one refresh attempt per page")
}

func TestFetcher_RateLimitedBacksOffAndRetriesSamePage(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, 0, skipParam(t, r), "retry must re-request the same offset")
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, []map[string]any{{"Id": 1}})
	}))
	defer server.Close()

	f, slept := newTestFetcher(t, server.URL, &stubTokens{token: "token-0"}, 2)
	result, err := f.Fetch(context.Background(), model.PageRequest{Resource: "Contacts"})
	require.NoError(t, err)

	assert.Len(t, result.Records(), 1)
	require.Len(t, *slept, 1)
	assert.Equal(t, 10*time.Second, (*slept)[0])
}

func TestFetcher_RateLimitRetriesExhausted(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f, slept := newTestFetcher(t, server.URL, &stubTokens{token: "token-0"}, 2)
	_, err := f.Fetch(context.Background(), model.PageRequest{Resource: "Contacts"})

	require.Error(t, err)
	assert.True(t, apperrors.IsAPICall(err))
	assert.Equal(t, http.StatusTooManyRequests, apperrors.GetStatusCode(err))
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
	assert.Len(t, *slept, 2)
}

func TestFetcher_UpstreamErrorCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid filter expression"}`))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server.URL, &stubTokens{token: "token-0"}, 2)
	_, err := f.Fetch(context.Background(), model.PageRequest{Resource: "Events", Filter: "bogus"})

	require.Error(t, err)
	assert.True(t, apperrors.IsAPICall(err))
	assert.Equal(t, http.StatusBadRequest, apperrors.GetStatusCode(err))
	assert.Contains(t, err.Error(), "Invalid filter expression")
}

func TestFetcher_RequiresResource(t *testing.T) {
	f, _ := newTestFetcher(t, "http://unused.invalid", &stubTokens{token: "t"}, 2)
	_, err := f.Fetch(context.Background(), model.PageRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
