package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"golang.org/x/time/rate"

	"nfse-report/internal/batch"
	"nfse-report/internal/config"
	"nfse-report/internal/metrics"
	"nfse-report/internal/report"
)

const uploadField = "file"

var (
	errMissingFile = errors.New("campo multipart 'file' é obrigatório")
	errTooLarge    = errors.New("arquivo excede o tamanho máximo permitido")
)

type Options struct {
	MaxUploadBytes int64
	RateLimit      float64 // req/s; <= 0 desliga
	RateBurst      int
	Layout         report.Layout
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Layout:         cfg.Layout,
	}
}

type Router struct {
	opts    Options
	limiter *rate.Limiter
}

func NewRouter(opts Options) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}

	rt := &Router{opts: opts}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		rt.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/v1/reports", rateLimitMiddleware(http.HandlerFunc(rt.reportJSON), rt.limiter))
	mux.Handle("/v1/reports/xlsx", rateLimitMiddleware(http.HandlerFunc(rt.reportXLSX), rt.limiter))
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reportResponse struct {
	RequestID string `json:"request_id"`
	File      string `json:"file"`
	report.View
}

func (rt *Router) reportJSON(w http.ResponseWriter, r *http.Request) {
	name, res, ok := rt.collectUpload(w, r)
	if !ok {
		return
	}

	view := rt.view(res)
	metrics.ObserveReport("web", viewResult(view))
	writeJSON(w, http.StatusOK, reportResponse{
		RequestID: requestIDFromContext(r.Context()),
		File:      name,
		View:      view,
	})
}

func (rt *Router) reportXLSX(w http.ResponseWriter, r *http.Request) {
	name, res, ok := rt.collectUpload(w, r)
	if !ok {
		return
	}

	// sem notas não há planilha: devolve a mesma mensagem da visão JSON
	if res.Table.Empty() {
		view := rt.view(res)
		metrics.ObserveReport("web", viewResult(view))
		writeJSON(w, http.StatusOK, reportResponse{
			RequestID: requestIDFromContext(r.Context()),
			File:      name,
			View:      view,
		})
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, res.Table, rt.opts.Layout); err != nil {
		slog.Error("erro gerando planilha",
			"request_id", requestIDFromContext(r.Context()),
			"file", name,
			"err", err,
		)
		metrics.ObserveReport("web", "failed")
		writeError(w, r, http.StatusInternalServerError, "erro gerando planilha")
		return
	}

	metrics.ObserveReport("web", "success")
	w.Header().Set("Content-Type", report.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rt.fileName()))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// collectUpload lê o multipart, classifica e processa o arquivo. Quando
// devolve ok=false a resposta de erro já foi escrita.
func (rt *Router) collectUpload(w http.ResponseWriter, r *http.Request) (string, batch.Result, bool) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "método não permitido")
		return "", batch.Result{}, false
	}

	name, data, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return "", batch.Result{}, false
	}

	kind, err := batch.KindFromFilename(name)
	if err != nil {
		metrics.ObserveReport("web", "failed")
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return "", batch.Result{}, false
	}

	res, err := batch.Collect(kind, name, data)
	if err != nil {
		metrics.ObserveReport("web", "failed")
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return "", batch.Result{}, false
	}

	return name, res, true
}

func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	if r.ContentLength > rt.opts.MaxUploadBytes {
		return "", nil, errTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return "", nil, uploadError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, uploadError(err)
	}
	return header.Filename, data, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return errTooLarge
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart),
		errors.Is(err, multipart.ErrMessageTooLarge):
		return errMissingFile
	default:
		return fmt.Errorf("%w: %v", errMissingFile, err)
	}
}

func (rt *Router) view(res batch.Result) report.View {
	v := report.BuildView(res.Table, rt.opts.Layout)
	v.SkippedDocuments = res.SkippedDocuments
	v.RejectedInvoices = res.RejectedInvoices
	return v
}

func (rt *Router) fileName() string {
	if rt.opts.Layout.FileName != "" {
		return rt.opts.Layout.FileName
	}
	return report.DefaultLayout().FileName
}

func viewResult(v report.View) string {
	if v.Empty {
		return "empty"
	}
	return "success"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":      msg,
		"request_id": requestIDFromContext(r.Context()),
	})
}
