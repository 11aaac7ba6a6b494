package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/httpx"
	"github.com/vladislavdragonenkov/settlement/internal/version"
)

// Run собирает зависимости и запускает HTTP-сервер, outbox worker и janitor.
// Возврат происходит после отмены ctx и graceful-остановки всех частей.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	router := httpx.NewRouter(deps.Health)
	handler := &httpx.PaymentsHandler{
		Processor:   deps.Processor,
		Refunds:     deps.Refunds,
		Payments:    deps.Payments,
		Commissions: deps.CommissionEngine,
		Store:       deps.Store,
		Verifier:    deps.Verifier,
		Normalizer:  deps.Normalizer,
		Metrics:     deps.Metrics,
		Logger:      logger.WithField("layer", "http"),
	}
	handler.Register(router)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		deps.Worker.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		deps.Janitor.Run(workerCtx)
	}()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Infof("settlement service %s listening", version.String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(srv, logger)
		stopWorkers()
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		stopWorkers()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func versionString() string {
	return version.GetVersion()
}
