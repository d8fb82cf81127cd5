package wildapricot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/novalabs/wa-reporting/internal/domain/model"
	apperrors "github.com/novalabs/wa-reporting/internal/errors"
	"github.com/novalabs/wa-reporting/internal/observability/statsd"
	"github.com/novalabs/wa-reporting/internal/ports"
)

// maxErrorBodyBytes caps how much of an upstream error body is carried in an
// error message.
const maxErrorBodyBytes = 4 * 1024

// Fetcher walks Wild Apricot list endpoints page by page and returns one
// accumulated result. Every call re-walks from offset 0; there is no caching.
//
// Retry policy, per page:
//   - 401: refresh the service token once and retry the page once; a second
//     401 fails the fetch.
//   - 429: wait a fixed backoff and retry, up to a small cap. Deliberately
//     not exponential; the remote rate window is fixed.
//   - any other non-200: fail immediately with the upstream status and body.
type Fetcher struct {
	httpClient       *http.Client
	baseURL          string
	accountID        string
	tokens           ports.TokenProvider
	pageSize         int
	rateLimitBackoff time.Duration
	rateLimitRetries int
	logger           *slog.Logger
	metrics          statsd.Sink

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ ports.Fetcher = (*Fetcher)(nil)

// FetcherOptions holds configuration for a Fetcher.
type FetcherOptions struct {
	HTTPClient       *http.Client // Optional, defaults to a 30s-timeout client
	BaseURL          string       // API base, e.g. "https://api.wildapricot.org/v2.2"
	AccountID        string       // fixed account all resource paths are scoped to
	Tokens           ports.TokenProvider
	PageSize         int           // $top per page; defaults to 100
	RateLimitBackoff time.Duration // wait after a 429; defaults to 10s
	RateLimitRetries int           // 429 retries per page; defaults to 5
	Logger           *slog.Logger  // Optional
	Metrics          statsd.Sink   // Optional
}

// NewFetcher creates a paginated fetcher for one account.
func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if opts.AccountID == "" {
		return nil, errors.New("account ID is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("token provider is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	backoff := opts.RateLimitBackoff
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	retries := opts.RateLimitRetries
	if retries <= 0 {
		retries = 5
	}

	return &Fetcher{
		httpClient:       httpClient,
		baseURL:          opts.BaseURL,
		accountID:        opts.AccountID,
		tokens:           opts.Tokens,
		pageSize:         pageSize,
		rateLimitBackoff: backoff,
		rateLimitRetries: retries,
		logger:           logger,
		metrics:          opts.Metrics,
		sleep:            sleepContext,
	}, nil
}

// Fetch walks every page of the requested resource, in strictly increasing
// offset order, and returns the accumulated result. The response shape is
// detected on the first page only:
//
//   - a bare array accumulates into FetchResult.Items;
//   - an object with exactly one list-valued field accumulates that field,
//     and a numeric Count sibling is corrected to the accumulated length;
//   - any other object is not a paginated collection and is returned as-is.
//
// Pagination stops when a page yields fewer records than the page size. A
// final page of exactly the page size therefore costs one extra, empty fetch;
// that is the safe side of the last-page ambiguity.
func (f *Fetcher) Fetch(ctx context.Context, req model.PageRequest) (model.FetchResult, error) {
	if req.Resource == "" {
		return model.FetchResult{}, apperrors.Validation("resource is required")
	}

	start := time.Now()
	base := url.Values{}
	base.Set("$async", "false")
	if req.Filter != "" {
		base.Set("$filter", req.Filter)
	}
	if req.Select != "" {
		base.Set("$select", req.Select)
	}
	if req.EventID != 0 {
		base.Set("eventId", strconv.FormatInt(req.EventID, 10))
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/%s", f.baseURL, f.accountID, req.Resource)
	acc := accumulator{pageSize: f.pageSize}

	for skip := 0; ; skip += f.pageSize {
		query := url.Values{}
		for k, v := range base {
			query[k] = v
		}
		query.Set("$top", strconv.Itoa(f.pageSize))
		query.Set("$skip", strconv.Itoa(skip))

		body, err := f.getPage(ctx, req.Resource, endpoint, query)
		if err != nil {
			return model.FetchResult{}, err
		}

		done, err := acc.addPage(body)
		if err != nil {
			return model.FetchResult{}, apperrors.Wrapf(err, apperrors.ErrCodeInternal,
				"unexpected %s response at offset %d", req.Resource, skip)
		}
		f.count("api.pages", map[string]string{"resource": req.Resource})
		f.logger.DebugContext(ctx, "page retrieved",
			"resource", req.Resource, "skip", skip, "records", acc.lastPageLen)

		if done {
			break
		}
	}

	if f.metrics != nil {
		f.metrics.Timing("api.fetch", time.Since(start), map[string]string{"resource": req.Resource})
	}
	return acc.result(), nil
}

// getPage issues one page request, applying the per-page retry policy.
func (f *Fetcher) getPage(ctx context.Context, resource, endpoint string, query url.Values) ([]byte, error) {
	refreshed := false
	rateRetries := 0

	for {
		status, body, err := f.do(ctx, endpoint, query)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeAPICall, "call %s", resource)
		}

		switch status {
		case http.StatusOK:
			return body, nil

		case http.StatusUnauthorized:
			if refreshed {
				return nil, apperrors.AuthRetryExhausted()
			}
			refreshed = true
			f.count("api.token_refresh", map[string]string{"resource": resource})
			f.logger.DebugContext(ctx, "API call failed with 401, refreshing service token and retrying",
				"resource", resource)
			if _, err := f.tokens.Refresh(ctx); err != nil {
				return nil, err
			}

		case http.StatusTooManyRequests:
			rateRetries++
			if rateRetries > f.rateLimitRetries {
				return nil, apperrors.APICallFailed(status, truncate(body))
			}
			f.count("api.rate_limited", map[string]string{"resource": resource})
			f.logger.DebugContext(ctx, "API call failed with 429, backing off",
				"resource", resource, "backoff", f.rateLimitBackoff)
			if err := f.sleep(ctx, f.rateLimitBackoff); err != nil {
				return nil, err
			}

		default:
			return nil, apperrors.APICallFailed(status, truncate(body))
		}
	}
}

func (f *Fetcher) do(ctx context.Context, endpoint string, query url.Values) (int, []byte, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (f *Fetcher) count(name string, tags map[string]string) {
	if f.metrics != nil {
		f.metrics.Count(name, 1, tags)
	}
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes])
	}
	return string(body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// accumulator folds successive pages into one result, detecting the response
// shape on the first page and holding it for the rest of the walk.
type accumulator struct {
	pageSize    int
	detected    bool
	isList      bool
	key         string
	items       []map[string]any
	object      map[string]any
	raw         map[string]any
	lastPageLen int
}

// addPage folds one page body in. It returns true when pagination is done:
// either the page was short of the page size, or the response turned out not
// to be a paginated collection at all.
func (a *accumulator) addPage(body []byte) (bool, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return false, fmt.Errorf("decode page: %w", err)
	}

	switch v := data.(type) {
	case []any:
		if a.detected && !a.isList {
			return false, errors.New("response shape changed mid-pagination")
		}
		a.detected = true
		a.isList = true
		page := toRecords(v)
		a.lastPageLen = len(page)
		a.items = append(a.items, page...)
		return len(page) < a.pageSize, nil

	case map[string]any:
		if a.detected && a.isList {
			return false, errors.New("response shape changed mid-pagination")
		}
		if !a.detected {
			key, ok := singleListKey(v)
			if !ok {
				// Not a paginated collection; hand the object back untouched.
				a.detected = true
				a.raw = v
				return true, nil
			}
			a.detected = true
			a.key = key
			a.object = make(map[string]any, len(v))
			for k, val := range v {
				a.object[k] = val
			}
		}
		if a.raw != nil {
			return false, errors.New("response shape changed mid-pagination")
		}
		pageItems, _ := v[a.key].([]any)
		page := toRecords(pageItems)
		a.lastPageLen = len(page)
		a.items = append(a.items, page...)
		return len(page) < a.pageSize, nil

	default:
		return false, errors.New("response is neither a list nor an object")
	}
}

func (a *accumulator) result() model.FetchResult {
	switch {
	case a.raw != nil:
		return model.FetchResult{Shape: model.ShapeRaw, Object: a.raw}
	case a.isList:
		return model.FetchResult{Shape: model.ShapeList, Items: a.items}
	default:
		a.object[a.key] = a.items
		// The per-page Count is meaningless after accumulation; align it
		// with what was actually collected.
		if _, ok := a.object["Count"].(float64); ok {
			a.object["Count"] = len(a.items)
		}
		return model.FetchResult{
			Shape:         model.ShapeObject,
			Object:        a.object,
			CollectionKey: a.key,
		}
	}
}

// singleListKey returns the only list-valued key of the mapping, if there is
// exactly one.
func singleListKey(m map[string]any) (string, bool) {
	var key string
	count := 0
	for k, v := range m {
		if _, ok := v.([]any); ok {
			key = k
			count++
		}
	}
	return key, count == 1
}

func toRecords(items []any) []map[string]any {
	records := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if rec, ok := it.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records
}
