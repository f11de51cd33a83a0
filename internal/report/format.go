package report

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"nfse-report/internal/nfse"
)

const zeroReais = "R$ 0,00"

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatCurrency formata no padrão brasileiro: R$ 1.234,56.
func FormatCurrency(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return zeroReais
	}

	// arredonda antes para que -0,004 não saia como R$ -0,00
	v = math.Round(v*100) / 100
	if v == 0 {
		return zeroReais
	}
	return "R$ " + brl.Sprintf("%.2f", v)
}

// FormatCurrencyText aceita o valor ainda como texto; o que não for número vira R$ 0,00.
func FormatCurrencyText(s string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return zeroReais
	}
	return FormatCurrency(v)
}

// FormatRate mostra alíquotas e percentuais com duas casas.
func FormatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatDocument pontua CPF (11 dígitos) e CNPJ (14 dígitos). Qualquer outra
// quantidade de dígitos volta como veio.
func FormatDocument(s string) string {
	if s == "" || s == nfse.Ausente {
		return nfse.Ausente
	}

	d := onlyDigits(s)
	switch len(d) {
	case 11:
		return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:]
	case 14:
		return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
	default:
		return s
	}
}

// FormatDate devolve DD/MM/AAAA, ou N/A para data ausente.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return nfse.Ausente
	}
	return t.Format("02/01/2006")
}

// FormatFlag traduz o booleano para Sim/Não.
func FormatFlag(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
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
