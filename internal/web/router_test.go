package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"nfse-report/internal/nfsetest"
	"nfse-report/internal/report"
)

func newTestHandler(opts Options) http.Handler {
	if opts.Layout == (report.Layout{}) {
		opts.Layout = report.DefaultLayout()
	}
	return NewRouter(opts).Handler()
}

func uploadRequest(t *testing.T, path, filename string, body []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func TestHealthzEndpoint(t *testing.T) {
	res := serve(newTestHandler(Options{}), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, res.Header().Get(requestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	res := serve(newTestHandler(Options{}), req)
	assert.Equal(t, "abc-123", res.Header().Get(requestIDHeader))
}

func TestReportJSONFromXML(t *testing.T) {
	doc := nfsetest.Document(nfsetest.Full("1"), nfsetest.Full("2"))
	res := serve(newTestHandler(Options{}), uploadRequest(t, "/v1/reports", "notas.xml", []byte(doc)))
	require.Equal(t, http.StatusOK, res.Code)

	body := decode(t, res)
	assert.Equal(t, "notas.xml", body["file"])
	assert.Equal(t, false, body["empty"])
	assert.Equal(t, res.Header().Get(requestIDHeader), body["request_id"])

	rows, ok := body["rows"].([]any)
	require.True(t, ok)
	assert.Len(t, rows, 2)

	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, summary, "valor_servicos")

	cols, ok := body["columns"].([]any)
	require.True(t, ok)
	for _, c := range report.ExcludedColumns {
		assert.NotContains(t, cols, c)
	}
}

func TestReportJSONFromZIPCountsSkipped(t *testing.T) {
	data := nfsetest.Zip(t,
		nfsetest.Entry{Name: "a.xml", Body: nfsetest.Document(nfsetest.Full("1"))},
		nfsetest.Entry{Name: "ruim.xml", Body: "<nao-fecha>"},
		nfsetest.Entry{Name: "leia-me.txt", Body: "ignorado"},
	)
	res := serve(newTestHandler(Options{}), uploadRequest(t, "/v1/reports", "lote.zip", data))
	require.Equal(t, http.StatusOK, res.Code)

	body := decode(t, res)
	assert.Len(t, body["rows"], 1)
	assert.EqualValues(t, 1, body["skipped_documents"])
}

func TestReportJSONEmpty(t *testing.T) {
	res := serve(newTestHandler(Options{}), uploadRequest(t, "/v1/reports", "vazio.xml", []byte(nfsetest.Document())))
	require.Equal(t, http.StatusOK, res.Code)

	body := decode(t, res)
	assert.Equal(t, true, body["empty"])
	assert.Equal(t, report.MensagemSemDados, body["message"])
}

func TestReportErrors(t *testing.T) {
	h := newTestHandler(Options{})

	res := serve(h, uploadRequest(t, "/v1/reports", "lote.zip", []byte("não é zip")))
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.NotEmpty(t, decode(t, res)["error"])

	res = serve(h, uploadRequest(t, "/v1/reports", "notas.pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusUnsupportedMediaType, res.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader("texto"))
	req.Header.Set("Content-Type", "text/plain")
	res = serve(h, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = serve(h, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)
}

func TestReportUploadTooLarge(t *testing.T) {
	h := newTestHandler(Options{MaxUploadBytes: 1024})
	doc := nfsetest.Document(nfsetest.Full("1"), nfsetest.Full("2"), nfsetest.Full("3"))
	require.Greater(t, len(doc), 1024)

	res := serve(h, uploadRequest(t, "/v1/reports", "notas.xml", []byte(doc)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
}

func TestReportXLSXDownload(t *testing.T) {
	doc := nfsetest.Document(nfsetest.Full("1"))
	res := serve(newTestHandler(Options{}), uploadRequest(t, "/v1/reports/xlsx", "notas.xml", []byte(doc)))
	require.Equal(t, http.StatusOK, res.Code)

	assert.Equal(t, report.ContentTypeXLSX, res.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="dados_nfse.xlsx"`, res.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(res.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Dados NFS-e")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReportXLSXEmptyReturnsMessage(t *testing.T) {
	res := serve(newTestHandler(Options{}), uploadRequest(t, "/v1/reports/xlsx", "vazio.xml", []byte(nfsetest.Document())))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, report.MensagemSemDados, decode(t, res)["message"])
}

func TestRateLimitReturns429(t *testing.T) {
	h := newTestHandler(Options{RateLimit: 0.5, RateBurst: 1})
	doc := []byte(nfsetest.Document(nfsetest.Full("1")))

	res := serve(h, uploadRequest(t, "/v1/reports", "a.xml", doc))
	assert.Equal(t, http.StatusOK, res.Code)

	res = serve(h, uploadRequest(t, "/v1/reports", "b.xml", doc))
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, "2", res.Header().Get("Retry-After"))

	// healthz não passa pelo limitador
	res = serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	res := serve(newTestHandler(Options{}), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, res.Code)
}
