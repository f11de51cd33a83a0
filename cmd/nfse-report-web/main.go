package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nfse-report/internal/config"
	"nfse-report/internal/logx"
	"nfse-report/internal/metrics"
	"nfse-report/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Init("info")
		slog.Error("erro carregando config", "err", err)
		os.Exit(1)
	}

	logx.Init(cfg.LogLevel)
	slog.Info("[nfse-report-web] iniciando...")

	metrics.Init()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           web.NewRouter(web.OptionsFromConfig(cfg)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("servidor HTTP escutando", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("servidor HTTP finalizou com erro", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("sinal recebido, encerrando servidor HTTP")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("erro no shutdown do servidor HTTP", "err", err)
		}
	}

	slog.Info("[nfse-report-web] finalizado")
}
