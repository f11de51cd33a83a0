package report

import (
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"nfse-report/internal/nfse"
)

// ContentTypeXLSX é o MIME da planilha gerada.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	currencyNumFmt = `"R$ "#,##0.00`
	rateNumFmt     = 2 // formato embutido "0.00"
)

// Layout são as opções visuais do relatório, carregadas uma vez na subida.
type Layout struct {
	Title          string  `yaml:"title"`
	SheetName      string  `yaml:"sheet_name"`
	FileName       string  `yaml:"file_name"`
	HeaderColor    string  `yaml:"header_color"`
	MaxColumnWidth float64 `yaml:"max_column_width"`
}

// DefaultLayout é o layout usado quando nada é configurado.
func DefaultLayout() Layout {
	return Layout{
		Title:          "Relatório  NFS-e",
		SheetName:      "Dados NFS-e",
		FileName:       "dados_nfse.xlsx",
		HeaderColor:    "1F77B4",
		MaxColumnWidth: 50,
	}
}

func (l Layout) withDefaults() Layout {
	def := DefaultLayout()
	if l.Title == "" {
		l.Title = def.Title
	}
	if l.SheetName == "" {
		l.SheetName = def.SheetName
	}
	if l.FileName == "" {
		l.FileName = def.FileName
	}
	if l.HeaderColor == "" {
		l.HeaderColor = def.HeaderColor
	}
	if l.MaxColumnWidth <= 0 {
		l.MaxColumnWidth = def.MaxColumnWidth
	}
	return l
}

// WriteXLSX grava a tabela em uma planilha de aba única, com cabeçalho
// destacado, colunas centralizadas e largura ajustada ao conteúdo.
func WriteXLSX(w io.Writer, t nfse.Table, layout Layout) error {
	layout = layout.withDefaults()
	fields := ExportFields(nfse.Fields)

	f := excelize.NewFile()
	defer f.Close()

	sheet := layout.SheetName
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("erro nomeando aba %q: %w", sheet, err)
	}

	styles, err := newStyles(f, layout)
	if err != nil {
		return err
	}

	widths := make([]int, len(fields))

	header := make([]interface{}, len(fields))
	for i, fd := range fields {
		header[i] = fd.Column
		widths[i] = utf8.RuneCountInString(fd.Column)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("erro escrevendo cabeçalho: %w", err)
	}

	for i := range t {
		row := make([]interface{}, len(fields))
		for j, fd := range fields {
			row[j] = cellValue(fd, &t[i])
			if n := utf8.RuneCountInString(DisplayCell(fd, &t[i])); n > widths[j] {
				widths[j] = n
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("erro escrevendo linha %d: %w", i+2, err)
		}
	}

	lastRow := strconv.Itoa(len(t) + 1)
	for i, fd := range fields {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}

		if err := f.SetCellStyle(sheet, col+"1", col+"1", styles.header); err != nil {
			return fmt.Errorf("erro aplicando estilo no cabeçalho %s: %w", fd.Column, err)
		}
		if len(t) > 0 {
			if err := f.SetCellStyle(sheet, col+"2", col+lastRow, styles.forKind(fd.Kind)); err != nil {
				return fmt.Errorf("erro aplicando estilo na coluna %s: %w", fd.Column, err)
			}
		}

		width := float64(widths[i] + 2)
		if width > layout.MaxColumnWidth {
			width = layout.MaxColumnWidth
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("erro ajustando largura da coluna %s: %w", fd.Column, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("erro gravando planilha: %w", err)
	}
	return nil
}

type sheetStyles struct {
	header   int
	currency int
	rate     int
	text     int
}

func (s sheetStyles) forKind(k nfse.Kind) int {
	switch k {
	case nfse.KindMoney:
		return s.currency
	case nfse.KindRate:
		return s.rate
	default:
		return s.text
	}
}

func newStyles(f *excelize.File, layout Layout) (sheetStyles, error) {
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}
	currencyFmt := currencyNumFmt

	var (
		s   sheetStyles
		err error
	)

	s.header, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{layout.HeaderColor}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Alignment: center,
	})
	if err != nil {
		return s, fmt.Errorf("erro criando estilo do cabeçalho: %w", err)
	}

	s.currency, err = f.NewStyle(&excelize.Style{Alignment: center, CustomNumFmt: &currencyFmt})
	if err != nil {
		return s, fmt.Errorf("erro criando estilo de moeda: %w", err)
	}

	s.rate, err = f.NewStyle(&excelize.Style{Alignment: center, NumFmt: rateNumFmt})
	if err != nil {
		return s, fmt.Errorf("erro criando estilo de alíquota: %w", err)
	}

	s.text, err = f.NewStyle(&excelize.Style{Alignment: center})
	if err != nil {
		return s, fmt.Errorf("erro criando estilo de texto: %w", err)
	}

	return s, nil
}

// cellValue é o valor gravado na célula: números continuam números para a
// planilha somar; o resto vai como texto já formatado.
func cellValue(f nfse.Field, r *nfse.Record) interface{} {
	switch f.Kind {
	case nfse.KindMoney, nfse.KindRate:
		return f.Number(r)
	default:
		return DisplayCell(f, r)
	}
}
