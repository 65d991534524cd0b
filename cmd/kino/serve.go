package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/kino/internal/app/analysis"
	"github.com/coachpo/kino/internal/infra/config"
	httpserver "github.com/coachpo/kino/internal/infra/server/http"
)

func buildAPIServer(cfg config.AppConfig, svc *analysis.Service) *http.Server {
	handler := httpserver.NewHandler(string(cfg.Environment), svc, svc.PayTable())
	return &http.Server{
		Addr:              cfg.APIServer.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.APIServer.ReadHeaderTimeout,
	}
}

// serveAPI serves on listener until ctx is cancelled, then drains in-flight
// requests within the configured shutdown timeout.
func serveAPI(ctx context.Context, cfg config.AppConfig, svc *analysis.Service, logger logrus.FieldLogger, listener net.Listener) error {
	server := buildAPIServer(cfg, svc)
	var lifecycle conc.WaitGroup
	serveErr := make(chan error, 1)

	lifecycle.Go(func() {
		logger.WithField("addr", listener.Addr().String()).Info("api server listening")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	})

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.APIServer.ShutdownTimeout)
	defer cancel()
	logger.Info("shutdown: api server...")
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.WithError(shutdownErr).Warn("shutdown: api server failed")
	} else {
		logger.Info("shutdown: api server completed")
	}
	lifecycle.Wait()
	return err
}
