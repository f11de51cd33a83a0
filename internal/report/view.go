package report

import (
	"nfse-report/internal/nfse"
)

// ExcludedColumns nunca saem no relatório, mesmo que a tabela os traga.
var ExcludedColumns = []string{"pIBSMun", "pAliqEfetMun", "vIBSMun"}

// MensagemSemDados é o aviso mostrado quando o lote não tem nenhuma nota.
const MensagemSemDados = "Nenhum dado de NFS-e foi encontrado nos arquivos fornecidos."

// ExportFields filtra os campos que viram coluna no relatório.
func ExportFields(fields []nfse.Field) []nfse.Field {
	out := make([]nfse.Field, 0, len(fields))
	for _, f := range fields {
		if f.Legacy || isExcluded(f.Column) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isExcluded(column string) bool {
	for _, c := range ExcludedColumns {
		if c == column {
			return true
		}
	}
	return false
}

// Summary são os totais do lote, somados sobre os valores numéricos.
type Summary struct {
	ValorServicos float64 `json:"valor_servicos"`
	ISS           float64 `json:"iss"`
	IBSUF         float64 `json:"ibs_uf"`
	CBS           float64 `json:"cbs"`
}

// Summarize soma as quatro métricas do cabeçalho do relatório.
func Summarize(t nfse.Table) Summary {
	var s Summary
	for i := range t {
		s.ValorServicos += t[i].ValorServicos
		s.ISS += t[i].ValorISS
		s.IBSUF += t[i].VIBSUF
		s.CBS += t[i].VCBS
	}
	return s
}

// SummaryDisplay é o Summary já em reais.
type SummaryDisplay struct {
	ValorServicos string `json:"valor_servicos"`
	ISS           string `json:"iss"`
	IBSUF         string `json:"ibs_uf"`
	CBS           string `json:"cbs"`
}

func (s Summary) Display() SummaryDisplay {
	return SummaryDisplay{
		ValorServicos: FormatCurrency(s.ValorServicos),
		ISS:           FormatCurrency(s.ISS),
		IBSUF:         FormatCurrency(s.IBSUF),
		CBS:           FormatCurrency(s.CBS),
	}
}

// View é a tabela pronta para exibição: só strings, sem tocar nos registros.
type View struct {
	Title            string         `json:"title"`
	Empty            bool           `json:"empty"`
	Message          string         `json:"message,omitempty"`
	Columns          []string       `json:"columns"`
	Rows             [][]string     `json:"rows"`
	Summary          SummaryDisplay `json:"summary"`
	Totals           Summary        `json:"totals"`
	SkippedDocuments int            `json:"skipped_documents"`
	RejectedInvoices int            `json:"rejected_invoices"`
}

// BuildView monta a visão de exibição da tabela.
func BuildView(t nfse.Table, layout Layout) View {
	fields := ExportFields(nfse.Fields)

	v := View{
		Title:   layout.withDefaults().Title,
		Empty:   t.Empty(),
		Columns: make([]string, len(fields)),
		Rows:    make([][]string, 0, len(t)),
	}
	for i, f := range fields {
		v.Columns[i] = f.Column
	}
	for i := range t {
		row := make([]string, len(fields))
		for j, f := range fields {
			row[j] = DisplayCell(f, &t[i])
		}
		v.Rows = append(v.Rows, row)
	}

	totals := Summarize(t)
	v.Totals = totals
	v.Summary = totals.Display()
	if v.Empty {
		v.Message = MensagemSemDados
	}
	return v
}

// DisplayCell formata um campo de um registro para exibição.
func DisplayCell(f nfse.Field, r *nfse.Record) string {
	switch f.Kind {
	case nfse.KindDocument:
		return FormatDocument(f.Text(r).String())
	case nfse.KindMoney:
		if !f.Informed(r) {
			return nfse.Ausente
		}
		return FormatCurrency(f.Number(r))
	case nfse.KindRate:
		return FormatRate(f.Number(r))
	case nfse.KindDate:
		return FormatDate(f.Date(r))
	case nfse.KindFlag:
		return FormatFlag(f.Flag(r))
	default:
		return f.Text(r).String()
	}
}
