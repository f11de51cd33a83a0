package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfse-report/internal/config"
	"nfse-report/internal/queue"
)

type fakePublisher struct {
	mu     sync.Mutex
	jobs   []queue.Job
	err    error
	closed bool
}

func (f *fakePublisher) PublishJob(_ context.Context, job queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePublisher) published() []queue.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.Job(nil), f.jobs...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{
		IncomingDir:   filepath.Join(base, "incoming"),
		ProcessingDir: filepath.Join(base, "processing"),
		ProcessedDir:  filepath.Join(base, "processed"),
		FailedDir:     filepath.Join(base, "failed"),
		IgnoredDir:    filepath.Join(base, "ignored"),
		OutputDir:     filepath.Join(base, "reports"),
	}
	for _, d := range cfg.WorkDirs() {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return cfg
}

func newTestWatcher(t *testing.T, cfg *config.Config, pub queue.Publisher) *Watcher {
	t.Helper()
	w, err := New(cfg, pub)
	require.NoError(t, err)
	w.stableAttempts = 3
	w.stableDelay = 5 * time.Millisecond
	return w
}

func drop(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestHandleIncomingFileRoutesByExtension(t *testing.T) {
	cfg := testConfig(t)
	pub := &fakePublisher{}
	w := newTestWatcher(t, cfg, pub)
	defer w.watcher.Close()

	ctx := context.Background()
	w.handleIncomingFile(ctx, drop(t, cfg.IncomingDir, "notas.XML", "<x/>"))
	w.handleIncomingFile(ctx, drop(t, cfg.IncomingDir, "lote.zip", "PK"))
	w.handleIncomingFile(ctx, drop(t, cfg.IncomingDir, "planilha.csv", "a;b"))
	w.handleIncomingFile(ctx, drop(t, cfg.IncomingDir, "notas.xml:Zone.Identifier", "[ZoneTransfer]"))

	assert.FileExists(t, filepath.Join(cfg.ProcessingDir, "notas.XML"))
	assert.FileExists(t, filepath.Join(cfg.ProcessingDir, "lote.zip"))
	assert.FileExists(t, filepath.Join(cfg.IgnoredDir, "planilha.csv"))
	assert.NoFileExists(t, filepath.Join(cfg.IncomingDir, "notas.xml:Zone.Identifier"))
	assert.NoFileExists(t, filepath.Join(cfg.IgnoredDir, "notas.xml:Zone.Identifier"))

	jobs := pub.published()
	require.Len(t, jobs, 2)
	assert.Equal(t, "xml", jobs[0].Kind)
	assert.Equal(t, filepath.Join(cfg.ProcessingDir, "notas.XML"), jobs[0].Path)
	assert.Equal(t, "zip", jobs[1].Kind)
	assert.NotEmpty(t, jobs[1].ID)
}

func TestHandleIncomingFileKeepsEmptyFileInIncoming(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWatcher(t, cfg, nil)
	defer w.watcher.Close()

	path := drop(t, cfg.IncomingDir, "vazio.xml", "")
	w.handleIncomingFile(context.Background(), path)

	assert.FileExists(t, path)
}

func TestPublishFailureLeavesFileInProcessing(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWatcher(t, cfg, &fakePublisher{err: errors.New("broker fora")})
	defer w.watcher.Close()

	w.handleIncomingFile(context.Background(), drop(t, cfg.IncomingDir, "notas.xml", "<x/>"))
	assert.FileExists(t, filepath.Join(cfg.ProcessingDir, "notas.xml"))
}

func TestRunProcessesExistingFiles(t *testing.T) {
	cfg := testConfig(t)
	drop(t, cfg.IncomingDir, "antigo.xml", "<x/>")

	pub := &fakePublisher{}
	w := newTestWatcher(t, cfg, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.ProcessingDir, "antigo.xml"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher não encerrou após cancelamento")
	}

	assert.Len(t, pub.published(), 1)
	pub.mu.Lock()
	assert.True(t, pub.closed)
	pub.mu.Unlock()
}

func TestIsZoneIdentifier(t *testing.T) {
	assert.True(t, isZoneIdentifier("nota.xml:Zone.Identifier"))
	assert.True(t, isZoneIdentifier("NOTA.XML:ZONE.IDENTIFIER"))
	assert.False(t, isZoneIdentifier("nota.xml"))
}
