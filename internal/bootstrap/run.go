package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/novalabs/wa-reporting/config"
)

// Run wires the application and blocks until the context is cancelled or a
// component fails. It owns the lifecycle of the HTTP server and the job
// sweeper.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	adapters, err := NewAdapters(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer adapters.Close(logger)

	services, err := NewServices(&ServiceDeps{
		Config:   cfg,
		Adapters: adapters,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg,
		Services: services,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if sweepErr := services.Jobs.Run(gctx); !errors.Is(sweepErr, context.Canceled) {
			return sweepErr
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		// Use a fresh context; gctx is already cancelled.
		return ShutdownHTTPServer(context.Background(), server, logger)
	})

	return g.Wait()
}
