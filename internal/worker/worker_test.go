package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"nfse-report/internal/config"
	"nfse-report/internal/nfsetest"
	"nfse-report/internal/queue"
	"nfse-report/internal/report"
)

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
		Layout:        report.DefaultLayout(),
	}
	for _, d := range cfg.WorkDirs() {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return cfg
}

func put(t *testing.T, dir, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func TestProcessXMLWritesReport(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, nil)

	doc := nfsetest.Document(nfsetest.Full("10"), nfsetest.Full("11"))
	path := put(t, cfg.ProcessingDir, "notas.xml", []byte(doc))

	outcome, err := w.Process(path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReport, outcome)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(cfg.ProcessedDir, "notas.xml"))

	out := filepath.Join(cfg.OutputDir, "notas.xlsx")
	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(cfg.Layout.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// só o relatório final fica na pasta de saída
	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessZIPWritesReport(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, nil)

	data := nfsetest.Zip(t,
		nfsetest.Entry{Name: "a.xml", Body: nfsetest.Document(nfsetest.Full("1"))},
		nfsetest.Entry{Name: "quebrado.xml", Body: "<CompNfse>"},
		nfsetest.Entry{Name: "b.xml", Body: nfsetest.Document(nfsetest.Full("2"))},
	)
	path := put(t, cfg.ProcessingDir, "lote.zip", data)

	outcome, err := w.Process(path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReport, outcome)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "lote.xlsx"))
	assert.FileExists(t, filepath.Join(cfg.ProcessedDir, "lote.zip"))
}

func TestProcessEmptyGoesToIgnored(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, nil)

	path := put(t, cfg.ProcessingDir, "vazio.xml", []byte(nfsetest.Document()))

	outcome, err := w.Process(path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, outcome)
	assert.FileExists(t, filepath.Join(cfg.IgnoredDir, "vazio.xml"))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "vazio.xlsx"))
}

func TestProcessUnreadableGoesToFailed(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, nil)

	path := put(t, cfg.ProcessingDir, "corrompido.zip", []byte("isto não é um zip"))

	outcome, err := w.Process(path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreadable, outcome)
	assert.FileExists(t, filepath.Join(cfg.FailedDir, "corrompido.zip"))
}

func TestProcessUnsupportedGoesToIgnored(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, nil)

	path := put(t, cfg.ProcessingDir, "notas.txt", []byte("texto"))

	outcome, err := w.Process(path)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsupported, outcome)
	assert.FileExists(t, filepath.Join(cfg.IgnoredDir, "notas.txt"))
}

func TestProcessingFolderPolling(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, nil)

	put(t, cfg.ProcessingDir, "a.xml", []byte(nfsetest.Document(nfsetest.Full("1"))))
	put(t, cfg.ProcessingDir, "b.xml", []byte(nfsetest.Document(nfsetest.Full("2"))))
	require.NoError(t, os.Mkdir(filepath.Join(cfg.ProcessingDir, "sub"), 0o755))

	w.processProcessingFolder()

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "a.xlsx"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "b.xlsx"))
	assert.DirExists(t, filepath.Join(cfg.ProcessingDir, "sub"))
}

type fakeConsumer struct {
	jobs   []queue.Job
	errs   []error
	closed bool
}

func (f *fakeConsumer) ConsumeJobs(_ context.Context, handler func(queue.Job) error) error {
	for _, j := range f.jobs {
		f.errs = append(f.errs, handler(j))
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	f.closed = true
	return nil
}

func TestRunQueueMode(t *testing.T) {
	cfg := testConfig(t)
	path := put(t, cfg.ProcessingDir, "fila.xml", []byte(nfsetest.Document(nfsetest.Full("7"))))

	fc := &fakeConsumer{jobs: []queue.Job{
		queue.NewJob(path, "fila.xml", "xml"),
		queue.NewJob(filepath.Join(cfg.ProcessingDir, "sumiu.xml"), "sumiu.xml", "xml"),
	}}
	w := New(cfg, fc)

	require.NoError(t, w.Run(context.Background()))
	assert.True(t, fc.closed)
	assert.Equal(t, []error{nil, nil}, fc.errs)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "fila.xlsx"))
}

func TestRunQueueModeSweepsUnpublishedFiles(t *testing.T) {
	cfg := testConfig(t)
	orphan := put(t, cfg.ProcessingDir, "orfao.xml", []byte(nfsetest.Document(nfsetest.Full("8"))))

	fc := &fakeConsumer{}
	w := New(cfg, fc)

	require.NoError(t, w.Run(context.Background()))
	assert.Empty(t, fc.errs)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "orfao.xlsx"))
	assert.NoFileExists(t, orphan)
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "lote.xlsx"), ReportPath("out", "lote.zip"))
	assert.Equal(t, filepath.Join("out", "notas.2025.xlsx"), ReportPath("out", "notas.2025.XML"))
}
