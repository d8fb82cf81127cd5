// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.
package auth

import "time"

// UserToken is the bearer credential for a signed-in member, obtained via the
// authorization-code flow. It is never refreshed automatically; when it
// expires the member logs in again.
type UserToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Valid reports whether the token is present and not past its expiry.
// A zero expiry means the provider did not report one.
func (t UserToken) Valid() bool {
	if t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || time.Now().Before(t.Expiry)
}

// ServiceToken is the application-level bearer credential obtained via the
// client-credentials flow. It is not tied to a member and is replaced
// wholesale when the API reports it expired.
type ServiceToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// IsZero reports whether no service token has been obtained yet.
func (t ServiceToken) IsZero() bool { return t.AccessToken == "" }

// Session is the server-side record persisted for a logged-in member.
// ID is an opaque session identifier. ReportAccess caches the signoff check;
// nil means not yet determined, so the check runs again on the next request.
type Session struct {
	ID           string       `json:"id"`
	UserToken    UserToken    `json:"user_token"`
	ServiceToken ServiceToken `json:"service_token"`
	ReportAccess *bool        `json:"report_access,omitempty"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// HasReportAccess reports whether the cached signoff check passed.
func (s Session) HasReportAccess() bool {
	return s.ReportAccess != nil && *s.ReportAccess
}
