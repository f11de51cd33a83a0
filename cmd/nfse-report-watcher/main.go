package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nfse-report/internal/config"
	"nfse-report/internal/logx"
	"nfse-report/internal/metrics"
	"nfse-report/internal/queue"
	"nfse-report/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Init("info")
		slog.Error("erro carregando config", "err", err)
		os.Exit(1)
	}

	logx.Init(cfg.LogLevel)
	slog.Info("[nfse-report-watcher] iniciando...")

	// inicia métricas Prometheus
	metrics.Init()
	metrics.StartHTTPServer(cfg.MetricsAddrWatcher)

	var pub queue.Publisher
	if cfg.UsesRabbitMQ() {
		rmq, err := queue.NewRabbitMQ(queue.Options{
			URL:        cfg.RabbitMQURL,
			Queue:      cfg.RabbitMQQueue,
			MaxRetries: cfg.RabbitMQMaxRetries,
			Prefetch:   cfg.RabbitMQPrefetch,
		})
		if err != nil {
			slog.Error("erro conectando no RabbitMQ", "err", err)
			os.Exit(1)
		}
		pub = rmq
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(cfg, pub)
	if err != nil {
		slog.Error("erro criando watcher", "err", err)
		os.Exit(1)
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("watcher finalizou com erro", "err", err)
		os.Exit(1)
	}

	slog.Info("[nfse-report-watcher] finalizado")
}
