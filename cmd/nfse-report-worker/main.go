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
	"nfse-report/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Init("info")
		slog.Error("erro carregando config", "err", err)
		os.Exit(1)
	}

	logx.Init(cfg.LogLevel)
	slog.Info("[nfse-report-worker] iniciando...")

	// inicia métricas Prometheus
	metrics.Init()
	metrics.StartHTTPServer(cfg.MetricsAddrWorker)

	var consumer queue.Consumer
	if cfg.UsesRabbitMQ() {
		rmq, err := queue.NewRabbitMQ(queue.Options{
			URL:        cfg.RabbitMQURL,
			Queue:      cfg.RabbitMQQueue,
			MaxRetries: cfg.RabbitMQMaxRetries,
			Prefetch:   cfg.RabbitMQPrefetch,
		})
		if err != nil {
			slog.Error("erro criando cliente RabbitMQ no worker; caindo para modo polling",
				"err", err,
			)
		} else {
			consumer = rmq
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.New(cfg, consumer)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker finalizou com erro", "err", err)
		os.Exit(1)
	}

	slog.Info("[nfse-report-worker] finalizado")
}
