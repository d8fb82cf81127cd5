package httpx

import (
	"log/slog"
	"net/http"

	"github.com/novalabs/wa-reporting/internal/jobs"
	"github.com/novalabs/wa-reporting/internal/service"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth         AuthServiceInterface
	Reports      *service.ReportService
	Jobs         *jobs.Table
	Fetchers     FetcherFactory
	CookieDomain string
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router. Every report route sits
// behind the session gate and the report-access gate; JSON mirrors live under
// /api/ with the same gating but JSON error responses.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	renderer, err := NewRenderer(logger)
	if err != nil {
		return nil, err
	}

	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		Renderer:     renderer,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}
	reportHandlers := &ReportHandlers{
		Reports:  services.Reports,
		Jobs:     services.Jobs,
		Fetchers: services.Fetchers,
		Renderer: renderer,
		Logger:   logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/login", authHandlers.Login)
	mux.HandleFunc("GET /auth/callback", authHandlers.Callback)
	mux.HandleFunc("POST /auth/logout", authHandlers.Logout)

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	gated := func(h http.HandlerFunc) http.Handler {
		return RequireSession(services.Auth)(
			RequireReportAccess(services.Auth, renderer)(h))
	}

	mux.Handle("GET /reports", gated(reportHandlers.Index))
	mux.Handle("POST /reports/missing-checkins", gated(reportHandlers.SubmitMissingCheckins))
	mux.Handle("POST /reports/slack-orphans", gated(reportHandlers.SubmitSlackOrphans))
	mux.Handle("POST /reports/makerschool", gated(reportHandlers.SubmitMakerschool))
	mux.Handle("GET /reports/jobs/{id}", gated(reportHandlers.PollJob))

	mux.Handle("POST /api/reports/missing-checkins", gated(reportHandlers.APISubmitMissingCheckins))
	mux.Handle("POST /api/reports/slack-orphans", gated(reportHandlers.APISubmitSlackOrphans))
	mux.Handle("POST /api/reports/makerschool", gated(reportHandlers.APISubmitMakerschool))
	mux.Handle("GET /api/reports/jobs/{id}", gated(reportHandlers.APIPollJob))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/reports", http.StatusFound)
	})

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler, nil
}

// healthHandler reports liveness. The service holds no state worth probing
// beyond the process itself.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
