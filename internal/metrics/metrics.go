package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	documentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfse_documents_processed_total",
			Help: "Quantidade de XMLs de NFS-e processados, por status e origem (xml/zip).",
		},
		[]string{"status", "source"}, // status: success|parse_error|read_error, source: xml|zip
	)

	documentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nfse_document_process_duration_seconds",
			Help:    "Tempo de processamento de cada XML de NFS-e em segundos.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "source"},
	)

	invoicesExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfse_invoices_total",
			Help: "Notas encontradas nos XMLs, por resultado (ok|rejected).",
		},
		[]string{"result"},
	)

	reportsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfse_reports_total",
			Help: "Relatórios gerados, por canal (web|worker|cli) e resultado (success|empty|failed).",
		},
		[]string{"channel", "result"},
	)
)

// Init registra as métricas no registry global.
func Init() {
	prometheus.MustRegister(documentsProcessed, documentDuration, invoicesExtracted, reportsGenerated)
}

// ObserveDocument registra o resultado de um XML processado.
func ObserveDocument(status, source string, d time.Duration) {
	labels := prometheus.Labels{
		"status": status,
		"source": source,
	}
	documentsProcessed.With(labels).Inc()
	documentDuration.With(labels).Observe(d.Seconds())
}

// ObserveInvoices soma as notas aceitas e descartadas de um documento.
func ObserveInvoices(ok, rejected int) {
	invoicesExtracted.WithLabelValues("ok").Add(float64(ok))
	invoicesExtracted.WithLabelValues("rejected").Add(float64(rejected))
}

// ObserveReport registra um relatório entregue (ou não).
func ObserveReport(channel, result string) {
	reportsGenerated.WithLabelValues(channel, result).Inc()
}

// Handler expõe as métricas para quem já tem um mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartHTTPServer sobe um /metrics na porta indicada (ex: ":9101").
func StartHTTPServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		slog.Info("iniciando servidor de métricas Prometheus", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("erro no servidor de métricas", "addr", addr, "err", err)
		}
	}()
}
