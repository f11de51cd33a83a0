package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"nfse-report/internal/batch"
	"nfse-report/internal/config"
	"nfse-report/internal/queue"
)

// Watcher move o que cai em incoming para processing (xml/zip) ou ignored
// (qualquer outra coisa) e, com fila habilitada, avisa o worker.
type Watcher struct {
	cfg     *config.Config
	watcher *fsnotify.Watcher

	stableAttempts int
	stableDelay    time.Duration

	pub queue.Publisher // nil = worker em modo polling
}

func New(cfg *config.Config, pub queue.Publisher) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if pub != nil {
		slog.Info("RabbitMQ habilitado no watcher", "queue", cfg.RabbitMQQueue)
	} else {
		slog.Info("fila RabbitMQ desabilitada no watcher (NFSE_REPORT_QUEUE_BACKEND != rabbitmq)")
	}

	return &Watcher{
		cfg:            cfg,
		watcher:        w,
		stableAttempts: 5,
		stableDelay:    200 * time.Millisecond,
		pub:            pub,
	}, nil
}

func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	if w.pub != nil {
		defer w.pub.Close()
	}

	for _, d := range w.cfg.WorkDirs() {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}

	slog.Info("processando arquivos já existentes em incoming",
		"incoming_dir", w.cfg.IncomingDir,
	)
	w.processExistingFiles(ctx)

	if err := w.watcher.Add(w.cfg.IncomingDir); err != nil {
		return err
	}
	slog.Info("watching diretório de entrada",
		"incoming_dir", w.cfg.IncomingDir,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("contexto cancelado, encerrando watcher")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("erro no watcher", "err", err)
		}
	}
}

func (w *Watcher) processExistingFiles(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.IncomingDir)
	if err != nil {
		slog.Error("erro lendo diretório incoming",
			"dir", w.cfg.IncomingDir,
			"err", err,
		)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.handleIncomingFile(ctx, filepath.Join(w.cfg.IncomingDir, entry.Name()))
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Chmod) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("arquivo não está mais acessível em evento, ignorando",
				"path", event.Name,
				"err", err,
			)
		}
		return
	}
	if info.IsDir() {
		return
	}

	w.handleIncomingFile(ctx, event.Name)
}

func (w *Watcher) handleIncomingFile(ctx context.Context, path string) {
	filename := filepath.Base(path)

	// metadata do Windows (arquivo:Zone.Identifier) vem junto ao copiar
	if isZoneIdentifier(filename) {
		slog.Info("arquivo de metadata (Zone.Identifier) detectado; removendo", "path", path)
		if err := os.Remove(path); err != nil {
			slog.Warn("falha ao remover arquivo de metadata", "path", path, "err", err)
		}
		return
	}

	kind, err := batch.KindFromFilename(filename)
	if err != nil {
		w.move(path, w.cfg.IgnoredDir, "arquivo não suportado movido para ignored")
		return
	}

	if !w.waitFileStable(path) {
		slog.Warn("arquivo não estabilizou, ignorando por enquanto", "path", path)
		return
	}

	dest, ok := w.move(path, w.cfg.ProcessingDir, "arquivo movido de incoming para processing")
	if !ok || w.pub == nil {
		return
	}

	job := queue.NewJob(dest, filename, string(kind))
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := w.pub.PublishJob(pubCtx, job); err != nil {
		// o arquivo fica em processing; o worker varre a pasta ao subir
		slog.Error("erro publicando job no RabbitMQ",
			"job_id", job.ID,
			"path", dest,
			"kind", kind,
			"err", err,
		)
		return
	}
	slog.Info("job publicado no RabbitMQ",
		"job_id", job.ID,
		"path", dest,
		"kind", kind,
	)
}

// waitFileStable espera o tamanho parar de mudar (cópia terminou).
func (w *Watcher) waitFileStable(path string) bool {
	var lastSize int64 = -1

	for i := 0; i < w.stableAttempts; i++ {
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.Debug("erro ao stat arquivo durante espera de estabilidade",
					"path", path,
					"err", err,
				)
			}
			return false
		}

		size := info.Size()
		if size > 0 && size == lastSize {
			return true
		}

		lastSize = size
		time.Sleep(w.stableDelay)
	}

	return false
}

func (w *Watcher) move(src, dir, msg string) (string, bool) {
	dest := filepath.Join(dir, filepath.Base(src))
	if err := os.Rename(src, dest); err != nil {
		slog.Error("erro movendo arquivo de incoming",
			"src", src,
			"dest", dest,
			"err", err,
		)
		return "", false
	}
	slog.Info(msg, "src", src, "dest", dest)
	return dest, true
}

func isZoneIdentifier(name string) bool {
	return strings.Contains(strings.ToLower(name), "zone.identifier")
}
