package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	grpcapi "tilt-relay/internal/api/grpc"
	"tilt-relay/internal/application/supervisor"
	"tilt-relay/internal/config"
	"tilt-relay/internal/infrastructure/logging"
)

const httpShutdownTimeout = 5 * time.Second

type application struct {
	cfg        *config.Config
	logger     *logging.Logger
	supervisor *supervisor.Supervisor
	httpServer *http.Server
	grpcServer *grpcapi.Server
}

func newApplication(
	cfg *config.Config,
	logger *logging.Logger,
	sup *supervisor.Supervisor,
	httpServer *http.Server,
	grpcServer *grpcapi.Server,
) *application {
	return &application{
		cfg:        cfg,
		logger:     logger,
		supervisor: sup,
		httpServer: httpServer,
		grpcServer: grpcServer,
	}
}

// Run starts the status servers and blocks on the supervisor. The servers
// are stopped once the supervisor returns.
func (a *application) Run(ctx context.Context) error {
	config.LogConfig(a.logger, a.cfg)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var servers sync.WaitGroup
	if a.httpServer != nil {
		servers.Add(1)
		go func() {
			defer servers.Done()
			a.serveHTTP(serveCtx)
		}()
	}
	if a.grpcServer != nil {
		servers.Add(1)
		go func() {
			defer servers.Done()
			if err := a.grpcServer.Serve(serveCtx); err != nil {
				a.logger.Warn("gRPC server stopped with error", "error", err.Error())
			}
		}()
	}

	a.logger.Info("relay started")
	err := a.supervisor.Run(ctx)

	cancel()
	servers.Wait()
	return err
}

func (a *application) serveHTTP(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("HTTP server shutdown error", "error", err.Error())
		}
	}()

	a.logger.Info("HTTP server listening", "address", a.httpServer.Addr)
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("HTTP server failed", "error", err.Error())
	}
}
