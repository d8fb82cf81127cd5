package config

import "time"

// WildApricotConfig contains Wild Apricot OAuth credentials and API endpoints.
//
// The application authenticates twice against the same token endpoint: an
// authorization-code exchange for the signed-in member (user token) and a
// client-credentials exchange with HTTP Basic "APIKEY:<key>" for the
// application itself (service token).
type WildApricotConfig struct {
	ClientID     string `env:"CLIENT_ID,required"`
	ClientSecret string `env:"CLIENT_SECRET,required"`
	APIKey       string `env:"API_KEY,required"`
	RedirectURL  string `env:"REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"        envDefault:"contacts_me"`

	// AccountID is the fixed Wild Apricot account all resource paths are scoped to.
	AccountID string `env:"ACCOUNT_ID,required"`

	AuthURL    string `env:"AUTH_URL"     envDefault:"https://novalabs.wildapricot.org/sys/login/OAuthLogin"`
	TokenURL   string `env:"TOKEN_URL"    envDefault:"https://oauth.wildapricot.org/auth/token"`
	APIBaseURL string `env:"API_BASE_URL" envDefault:"https://api.wildapricot.org/v2.2"`

	// SignoffField is the multi-value label field on a member profile that
	// carries report signoffs; SignoffLabel is the exact label that grants
	// access to reports (case-sensitive).
	SignoffField string `env:"SIGNOFF_FIELD" envDefault:"Signoffs"`
	SignoffLabel string `env:"SIGNOFF_LABEL" envDefault:"[NL] reporting"`

	// PageSize is the $top value used when walking paginated list endpoints.
	// Wild Apricot caps list pages at 100 records.
	PageSize int `env:"PAGE_SIZE" envDefault:"100"`

	// RateLimitBackoff is how long to wait before retrying a page after a 429.
	RateLimitBackoff time.Duration `env:"RATE_LIMIT_BACKOFF" envDefault:"10s"`

	// RateLimitRetries caps how many times a single page is retried after 429s.
	RateLimitRetries int `env:"RATE_LIMIT_RETRIES" envDefault:"5"`
}

// Sanitize applies guardrails to Wild Apricot configuration values.
func (w *WildApricotConfig) Sanitize() {
	const maxPageSize = 100
	if w.PageSize < 1 || w.PageSize > maxPageSize {
		w.PageSize = maxPageSize
	}
	if w.RateLimitBackoff <= 0 {
		w.RateLimitBackoff = 10 * time.Second
	}
	if w.RateLimitRetries < 1 {
		w.RateLimitRetries = 1
	}
}
