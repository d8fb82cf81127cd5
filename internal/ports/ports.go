// Package ports defines interfaces (hexagonal ports) for the reporting system.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import (
	"context"

	domainauth "github.com/novalabs/wa-reporting/internal/domain/auth"
	"github.com/novalabs/wa-reporting/internal/domain/model"
)

// OAuthProvider drives both OAuth flows against the Wild Apricot endpoints and
// resolves the report-access signoff.
type OAuthProvider interface {
	// BeginLogin returns the provider authorization URL and the opaque state
	// echoed back on the callback.
	BeginLogin(ctx context.Context) (authURL, state string, err error)

	// CompleteLogin exchanges an authorization code for a user token.
	CompleteLogin(ctx context.Context, code string) (domainauth.UserToken, error)

	// FetchServiceToken performs the client-credentials grant for a fresh
	// application-level token. The previous token, if any, is discarded.
	FetchServiceToken(ctx context.Context) (domainauth.ServiceToken, error)

	// CheckReportAccess resolves the member behind the user token and reports
	// whether their profile carries the reporting signoff label. A missing or
	// empty signoff field is false, not an error; lookup failures are errors.
	CheckReportAccess(ctx context.Context, user domainauth.UserToken, service domainauth.ServiceToken) (bool, error)
}

// TokenProvider hands the fetcher a service token and mints a replacement
// when the API reports the current one expired.
type TokenProvider interface {
	// Token returns the current service token, obtaining one if none is held.
	Token(ctx context.Context) (domainauth.ServiceToken, error)

	// Refresh discards the held token and obtains a new one.
	Refresh(ctx context.Context) (domainauth.ServiceToken, error)
}

// Fetcher walks a paginated Wild Apricot list endpoint and returns the
// accumulated result.
type Fetcher interface {
	Fetch(ctx context.Context, req model.PageRequest) (model.FetchResult, error)
}

// SessionStore persists and retrieves member sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}
