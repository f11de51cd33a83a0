package batch

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nfse-report/internal/metrics"
	"nfse-report/internal/nfse"
)

// Kind é o tipo do arquivo recebido, informado por quem chama.
type Kind string

const (
	KindXML Kind = "xml"
	KindZIP Kind = "zip"
)

var (
	// ErrUnsupportedKind indica extensão diferente de .xml/.zip.
	ErrUnsupportedKind = errors.New("tipo de arquivo não suportado (use .xml ou .zip)")
	// ErrUnreadableArtifact indica que o arquivo recebido não pôde ser aberto
	// (ZIP corrompido, arquivo inexistente). Diferente de "nenhum dado encontrado".
	ErrUnreadableArtifact = errors.New("não foi possível abrir o arquivo")
)

// KindFromFilename classifica o arquivo pela extensão do nome.
func KindFromFilename(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml":
		return KindXML, nil
	case ".zip":
		return KindZIP, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, name)
	}
}

// Result é a tabela final mais os contadores da execução.
type Result struct {
	Table            nfse.Table
	Documents        int // XMLs lidos (soltos ou dentro do ZIP)
	SkippedDocuments int // XMLs descartados por erro de leitura/parse
	RejectedInvoices int // notas descartadas por falta de valor do serviço
}

// Collect processa um XML solto ou um ZIP de XMLs e junta todas as notas
// na ordem em que aparecem.
func Collect(kind Kind, name string, data []byte) (Result, error) {
	var res Result

	switch kind {
	case KindXML:
		res.processDocument(bytes.NewReader(data), string(KindXML), "file", name)
		return res, nil

	case KindZIP:
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			slog.Error("erro abrindo ZIP",
				"file", name,
				"err", err,
			)
			return Result{}, fmt.Errorf("%w: %s: %v", ErrUnreadableArtifact, name, err)
		}
		res.processZIP(zr, name)
		return res, nil

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}

// CollectFile lê o arquivo do disco e classifica pela extensão.
func CollectFile(path string) (Result, error) {
	kind, err := KindFromFilename(path)
	if err != nil {
		return Result{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrUnreadableArtifact, path, err)
	}

	return Collect(kind, filepath.Base(path), data)
}

func (res *Result) processZIP(zr *zip.Reader, name string) {
	if len(zr.File) == 0 {
		slog.Warn("ZIP está vazio",
			"zip", name,
		)
		return
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		inner := f.Name
		if !strings.HasSuffix(strings.ToLower(inner), ".xml") {
			slog.Info("arquivo dentro do ZIP ignorado (não é XML)",
				"zip", name,
				"inner_name", inner,
			)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			res.Documents++
			res.SkippedDocuments++
			slog.Warn("erro abrindo entrada do ZIP",
				"zip", name,
				"inner_name", inner,
				"err", err,
			)
			metrics.ObserveDocument("read_error", string(KindZIP), 0)
			continue
		}

		res.processDocument(rc, string(KindZIP), "inner_name", inner, "zip", name)
		rc.Close()
	}

	slog.Info("processamento de ZIP concluído",
		"zip", name,
		"xml_total", res.Documents,
		"xml_descartados", res.SkippedDocuments,
		"notas", len(res.Table),
		"notas_descartadas", res.RejectedInvoices,
	)
}

// processDocument roda parse -> extração -> normalização em um XML.
// Falha de parse descarta o documento sem interromper o lote.
func (res *Result) processDocument(r io.Reader, source string, attrs ...any) {
	start := time.Now()
	res.Documents++

	parsed, err := nfse.ParseDocument(r)
	if err != nil {
		res.SkippedDocuments++
		slog.Warn("XML inválido ignorado",
			append(attrs, "err", err)...,
		)
		metrics.ObserveDocument("parse_error", source, time.Since(start))
		return
	}

	for _, rej := range parsed.Rejected {
		slog.Warn("nota descartada",
			append(attrs,
				"invoice_index", rej.Index,
				"numero", rej.Numero,
				"err", rej.Err,
			)...,
		)
	}

	res.Table = append(res.Table, parsed.Records...)
	res.RejectedInvoices += len(parsed.Rejected)

	metrics.ObserveInvoices(len(parsed.Records), len(parsed.Rejected))
	metrics.ObserveDocument("success", source, time.Since(start))

	slog.Debug("XML de NFS-e processado",
		append(attrs,
			"notas", len(parsed.Records),
			"descartadas", len(parsed.Rejected),
		)...,
	)
}
