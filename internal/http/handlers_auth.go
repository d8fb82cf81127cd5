package httpx

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/novalabs/wa-reporting/internal/errors"
)

const (
	sessionCookieName  = "session_id"
	stateCookieName    = "oauth_state"
	redirectCookieName = "post_login_redirect"
)

// AuthHandlers provides HTTP handlers for the login flow.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	Renderer     *Renderer
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login handles the login initiation endpoint.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		h.Renderer.RenderMessage(w, http.StatusInternalServerError, MessagePage{
			Title:   "Login failed",
			Message: err.Error(),
		})
		return
	}

	h.setCookie(w, r, cookieParams{Name: stateCookieName, Value: result.State, MaxAge: 600})
	h.setCookie(w, r, cookieParams{Name: redirectCookieName, Value: redirectURI, MaxAge: 600})

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the OAuth callback endpoint.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || stateCookie.Value != state {
		h.Renderer.RenderMessage(w, http.StatusBadRequest, MessagePage{
			Title:   "Login failed",
			Message: "The login state did not match. Please start over.",
		})
		return
	}
	h.clearCookie(w, r, stateCookieName)

	session, err := h.Svc.CompleteLogin(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger().ErrorContext(r.Context(), "complete login failed", "error", err)
		message := err.Error()
		httpStatus := http.StatusBadRequest
		if status := apperrors.GetStatusCode(err); status != 0 {
			message = fmt.Sprintf("%s (upstream status %d)", message, status)
			httpStatus = http.StatusBadGateway
		}
		h.Renderer.RenderMessage(w, httpStatus, MessagePage{
			Title:   "Login failed",
			Message: message,
		})
		return
	}

	h.setCookie(w, r, cookieParams{
		Name:   sessionCookieName,
		Value:  session.ID,
		MaxAge: int(time.Until(session.ExpiresAt).Seconds()),
	})

	redirectURI := "/reports"
	if redirectCookie, cookieErr := r.Cookie(redirectCookieName); cookieErr == nil {
		if candidate := safeRedirectPath(redirectCookie.Value); candidate != "/" {
			redirectURI = candidate
		}
		h.clearCookie(w, r, redirectCookieName)
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// Logout handles the logout endpoint.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionCookie, err := r.Cookie(sessionCookieName); err == nil {
		if logoutErr := h.Svc.Logout(r.Context(), sessionCookie.Value); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", logoutErr)
		}
	}
	h.clearCookie(w, r, sessionCookieName)

	if isBrowserRequest(r) {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// cookieParams groups values for setCookie.
type cookieParams struct {
	Name   string
	Value  string
	MaxAge int
}

func (h *AuthHandlers) setCookie(w http.ResponseWriter, r *http.Request, p cookieParams) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    p.Value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   p.MaxAge,
	})
}

// clearCookie clears a cookie by setting it to expire immediately. It mirrors
// the attributes used when setting cookies so browsers reliably delete them.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// safeRedirectPath ensures the provided redirect is a same-origin relative
// path starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}
