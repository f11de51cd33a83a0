package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nfse-report/internal/batch"
	"nfse-report/internal/config"
	"nfse-report/internal/metrics"
	"nfse-report/internal/queue"
	"nfse-report/internal/report"
)

// Outcome é o destino que o arquivo de entrada teve.
type Outcome string

const (
	OutcomeReport      Outcome = "success" // relatório gerado, entrada em processed
	OutcomeEmpty       Outcome = "empty"   // nenhuma nota, entrada em ignored
	OutcomeUnreadable  Outcome = "failed"  // ZIP corrompido/ilegível, entrada em failed
	OutcomeUnsupported Outcome = "unsupported"
)

type Worker struct {
	cfg      *config.Config
	interval time.Duration

	consumer queue.Consumer // nil = modo polling
}

func New(cfg *config.Config, consumer queue.Consumer) *Worker {
	if consumer != nil {
		slog.Info("RabbitMQ habilitado no worker", "queue", cfg.RabbitMQQueue)
	} else {
		slog.Info("fila RabbitMQ desabilitada no worker (NFSE_REPORT_QUEUE_BACKEND != rabbitmq)")
	}

	return &Worker{
		cfg:      cfg,
		interval: 2 * time.Second,
		consumer: consumer,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	for _, d := range w.cfg.WorkDirs() {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}

	if w.consumer != nil {
		defer w.consumer.Close()
		slog.Info("worker rodando em modo fila (RabbitMQ)",
			"processing_dir", w.cfg.ProcessingDir,
		)
		// arquivos cujo job não chegou a ser publicado ficam parados em processing
		w.processProcessingFolder()
		return w.consumer.ConsumeJobs(ctx, w.handleJob)
	}

	slog.Info("worker rodando em modo polling de diretório",
		"processing_dir", w.cfg.ProcessingDir,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("contexto cancelado, encerrando worker")
			return ctx.Err()
		case <-ticker.C:
			w.processProcessingFolder()
		}
	}
}

// handleJob devolve erro só quando vale a pena tentar de novo (falha de
// escrita do relatório); arquivo sumido ou conteúdo ruim não volta pra fila.
func (w *Worker) handleJob(job queue.Job) error {
	info, err := os.Stat(job.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("arquivo do job não existe mais, ignorando",
				"job_id", job.ID,
				"path", job.Path,
				"kind", job.Kind,
			)
			return nil
		}
		return fmt.Errorf("erro ao stat arquivo do job %s: %w", job.Path, err)
	}
	if info.IsDir() {
		return nil
	}

	_, err = w.Process(job.Path)
	return err
}

func (w *Worker) processProcessingFolder() {
	entries, err := os.ReadDir(w.cfg.ProcessingDir)
	if err != nil {
		slog.Error("erro lendo diretório processing", "dir", w.cfg.ProcessingDir, "err", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.ProcessingDir, entry.Name())
		if _, err := w.Process(path); err != nil {
			// fica em processing, próxima volta tenta de novo
			slog.Error("erro gerando relatório, arquivo mantido em processing",
				"path", path,
				"err", err,
			)
		}
	}
}

// Process gera o relatório de um XML/ZIP em processing e move a entrada
// para a pasta correspondente ao resultado.
func (w *Worker) Process(path string) (Outcome, error) {
	filename := filepath.Base(path)
	start := time.Now()

	res, err := batch.CollectFile(path)
	switch {
	case errors.Is(err, batch.ErrUnsupportedKind):
		slog.Info("extensão não tratada em processing; movendo para ignored", "path", path)
		w.moveTo(path, w.cfg.IgnoredDir)
		return OutcomeUnsupported, nil

	case err != nil:
		slog.Error("arquivo ilegível, movendo para failed", "path", path, "err", err)
		w.moveTo(path, w.cfg.FailedDir)
		metrics.ObserveReport("worker", string(OutcomeUnreadable))
		return OutcomeUnreadable, nil
	}

	if res.Table.Empty() {
		slog.Warn(report.MensagemSemDados,
			"path", path,
			"xml_total", res.Documents,
			"xml_descartados", res.SkippedDocuments,
			"notas_descartadas", res.RejectedInvoices,
		)
		w.moveTo(path, w.cfg.IgnoredDir)
		metrics.ObserveReport("worker", string(OutcomeEmpty))
		return OutcomeEmpty, nil
	}

	out := ReportPath(w.cfg.OutputDir, filename)
	if err := writeReport(out, res, w.cfg.Layout); err != nil {
		return "", err
	}

	slog.Info("relatório gerado",
		"path", path,
		"report", out,
		"notas", len(res.Table),
		"xml_total", res.Documents,
		"xml_descartados", res.SkippedDocuments,
		"notas_descartadas", res.RejectedInvoices,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	w.moveTo(path, w.cfg.ProcessedDir)
	metrics.ObserveReport("worker", string(OutcomeReport))
	return OutcomeReport, nil
}

// ReportPath é <output>/<nome sem extensão>.xlsx.
func ReportPath(outputDir, filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return filepath.Join(outputDir, base+".xlsx")
}

// writeReport grava num temporário e renomeia, para quem lê a pasta de
// saída nunca pegar planilha pela metade.
func writeReport(dest string, res batch.Result, layout report.Layout) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".nfse-*.xlsx.tmp")
	if err != nil {
		return fmt.Errorf("erro criando arquivo temporário do relatório: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := report.WriteXLSX(tmp, res.Table, layout); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("erro fechando relatório: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("erro movendo relatório para %s: %w", dest, err)
	}
	return nil
}

func (w *Worker) moveTo(src, dir string) {
	dest := filepath.Join(dir, filepath.Base(src))
	if err := os.Rename(src, dest); err != nil {
		slog.Error("erro movendo arquivo de processing",
			"src", src,
			"dest", dest,
			"err", err,
		)
		return
	}
	slog.Info("arquivo movido de processing", "src", src, "dest", dest)
}
