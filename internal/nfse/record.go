package nfse

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMissingServiceValue indica nota sem ValorServicos numérico e não negativo; a nota é descartada.
var ErrMissingServiceValue = errors.New("valor do serviço ausente ou inválido")

// Record é uma linha do relatório, uma por InfNfse.
type Record struct {
	TomadorDocumento Value // só dígitos do XML: CPF (11) ou CNPJ (14)
	TomadorRazao     Value
	Numero           Value
	ValorServicos    float64
	Aliquota         Value
	ValorISS         float64
	ISSInformado     bool
	ISSRetido        bool
	DataEmissao      time.Time // zero = ausente
	ItemListaServico Value
	CodigoNBS        Value
	CodigoCNAE       Value
	Discriminacao    Value

	// IBS/CBS
	BaseCalculoIBSCBS float64
	PIBSUF            float64
	PRedAliqUF        float64
	PAliqEfetUF       float64
	PRedAliqMun       float64
	PCBS              float64
	PRedAliqCBS       float64
	PAliqEfetCBS      float64
	VIBSUF            float64
	VCBS              float64

	// layout anterior, nunca exportado
	PIBSMun      float64
	PAliqEfetMun float64
	VIBSMun      float64
}

// HasDataEmissao diz se a data de emissão veio e é válida.
func (r *Record) HasDataEmissao() bool {
	return !r.DataEmissao.IsZero()
}

// Table é a sequência de notas na ordem em que foram encontradas.
type Table []Record

// Empty sinaliza "nenhum dado encontrado".
func (t Table) Empty() bool {
	return len(t) == 0
}

// Raw é o texto bruto de cada campo de uma InfNfse, indexado pela coluna.
type Raw map[string]Value

// Extract localiza todas as InfNfse do documento e lê os campos de cada uma.
func Extract(root *Node) []Raw {
	if root == nil {
		return nil
	}

	var invoices []*Node
	if root.is("InfNfse") {
		invoices = append(invoices, root)
	}
	invoices = append(invoices, root.FindAll("InfNfse")...)

	out := make([]Raw, 0, len(invoices))
	for _, inf := range invoices {
		raw := make(Raw, len(Fields))
		for _, f := range Fields {
			raw[f.Column] = f.resolve(inf)
		}
		out = append(out, raw)
	}
	return out
}

// Normalize converte os campos brutos em um Record.
func Normalize(raw Raw) (Record, error) {
	var r Record

	for _, f := range Fields {
		v := raw[f.Column]

		switch f.Kind {
		case KindText:
			*f.text(&r) = v

		case KindDocument:
			// o XML às vezes traz o documento já pontuado
			if digits := onlyDigits(v.Text); v.Present && digits != "" {
				v = Present(digits)
			} else {
				v = Absent
			}
			*f.text(&r) = v

		case KindConstant:
			*f.text(&r) = Present(AliquotaFixa)

		case KindMoney, KindRate:
			n, ok := parseDecimal(v)
			if f.Missing == MissingReject && (!ok || n < 0) {
				return Record{}, fmt.Errorf("%w: %s=%q", ErrMissingServiceValue, f.Column, v.Text)
			}
			*f.num(&r) = n
			if f.present != nil {
				*f.present(&r) = v.Present
			}

		case KindFlag:
			*f.flag(&r) = v.Present && v.Text == "1"

		case KindDate:
			*f.date(&r) = parseDate(v)
		}
	}

	return r, nil
}

// ============================================================================
// Helpers (números, datas, documentos)
// ============================================================================

func parseDecimal(v Value) (float64, bool) {
	if !v.Present {
		return 0, false
	}
	s := strings.TrimSpace(v.Text)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate aceita os formatos ISO-8601 usados pelas prefeituras. O fuso é
// mantido como veio; só a data de calendário interessa.
func parseDate(v Value) time.Time {
	if !v.Present {
		return time.Time{}
	}
	s := strings.TrimSpace(v.Text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
