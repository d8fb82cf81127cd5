package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/novalabs/wa-reporting/config"
	"github.com/novalabs/wa-reporting/internal/adapters/wildapricot"
	httpx "github.com/novalabs/wa-reporting/internal/http"
	"github.com/novalabs/wa-reporting/internal/jobs"
	"github.com/novalabs/wa-reporting/internal/ports"
	"github.com/novalabs/wa-reporting/internal/service"
)

// Services holds the application service layer.
type Services struct {
	Auth     *service.AuthService
	Reports  *service.ReportService
	Jobs     *jobs.Table
	Fetchers httpx.FetcherFactory
}

// ServiceDeps groups the dependencies for NewServices.
type ServiceDeps struct {
	Config   *config.AppConfig
	Adapters *Adapters
	Logger   *slog.Logger
}

// NewServices wires the service layer over the adapters.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	logger := deps.Logger

	authSvc := service.NewAuthService(service.AuthServiceOptions{
		Provider:   deps.Adapters.Provider,
		Sessions:   deps.Adapters.Sessions,
		SessionTTL: cfg.Redis.SessionTTL,
		Logger:     logger,
	})

	table := jobs.NewTable(jobs.TableOptions{
		Workers:       cfg.Jobs.Workers,
		Timeout:       cfg.Jobs.Timeout,
		TTL:           cfg.Jobs.TTL,
		SweepInterval: cfg.Jobs.SweepInterval,
		Logger:        logger,
		Metrics:       deps.Adapters.Metrics,
	})

	fetchers, err := newFetcherFactory(cfg, authSvc, deps.Adapters, logger)
	if err != nil {
		return nil, err
	}

	return &Services{
		Auth:     authSvc,
		Reports:  service.NewReportService(service.ReportServiceOptions{Logger: logger}),
		Jobs:     table,
		Fetchers: fetchers,
	}, nil
}

// newFetcherFactory validates the fetcher configuration once at startup and
// returns the per-session factory.
func newFetcherFactory(
	cfg *config.AppConfig,
	authSvc *service.AuthService,
	adapters *Adapters,
	logger *slog.Logger,
) (httpx.FetcherFactory, error) {
	build := func(tokens ports.TokenProvider) (*wildapricot.Fetcher, error) {
		return wildapricot.NewFetcher(wildapricot.FetcherOptions{
			BaseURL:          cfg.WildApricot.APIBaseURL,
			AccountID:        cfg.WildApricot.AccountID,
			Tokens:           tokens,
			PageSize:         cfg.WildApricot.PageSize,
			RateLimitBackoff: cfg.WildApricot.RateLimitBackoff,
			RateLimitRetries: cfg.WildApricot.RateLimitRetries,
			Logger:           logger,
			Metrics:          adapters.Metrics,
		})
	}

	// A probe build surfaces configuration problems at startup rather than
	// on the first report request.
	if _, err := build(authSvc.TokenSource("startup-probe")); err != nil {
		return nil, fmt.Errorf("configure wild apricot fetcher: %w", err)
	}

	return func(sessionID string) ports.Fetcher {
		fetcher, err := build(authSvc.TokenSource(sessionID))
		if err != nil {
			// The options were validated by the probe build above.
			panic(err)
		}
		return fetcher
	}, nil
}
