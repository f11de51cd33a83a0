package nfse

import "time"

// Kind diz como o texto bruto de um campo vira valor tipado.
type Kind int

const (
	KindText Kind = iota
	KindDocument
	KindMoney
	KindRate
	KindDate
	KindFlag
	KindConstant
)

// Missing é a política aplicada quando o campo não existe ou não converte.
type Missing int

const (
	// MissingAbsent mantém o marcador de ausente (campos de identificação e texto).
	MissingAbsent Missing = iota
	// MissingZero usa 0.
	MissingZero
	// MissingZeroMarked usa 0 para soma, mas registra a ausência para exibição.
	MissingZeroMarked
	// MissingReject descarta a nota inteira.
	MissingReject
)

// AliquotaFixa é o rótulo gravado em todas as notas, independente do XML.
const AliquotaFixa = "3%"

// Field descreve um campo extraído: onde buscar no XML e como normalizar.
type Field struct {
	Column  string
	Path    []string
	OneOf   [][]string // alternativas buscadas dentro do nó de Path, em ordem
	Direct  bool       // Path ancorado nos filhos da InfNfse; não desce no RPS
	Kind    Kind
	Missing Missing
	Legacy  bool // extraído mas nunca exportado

	text    func(*Record) *Value
	num     func(*Record) *float64
	present func(*Record) *bool
	flag    func(*Record) *bool
	date    func(*Record) *time.Time
}

// Fields é a tabela de campos por nota, na ordem das colunas do relatório.
var Fields = []Field{
	{
		Column:  "CPF/CNPJ Tomador",
		Path:    []string{"IdentificacaoTomador", "CpfCnpj"},
		OneOf:   [][]string{{"Cpf"}, {"Cnpj"}},
		Kind:    KindDocument,
		Missing: MissingAbsent,
		text:    func(r *Record) *Value { return &r.TomadorDocumento },
	},
	{
		Column:  "Razão Social Tomador",
		Path:    []string{"Tomador", "RazaoSocial"},
		Kind:    KindText,
		Missing: MissingAbsent,
		text:    func(r *Record) *Value { return &r.TomadorRazao },
	},
	{
		Column:  "Número NFS-e",
		Path:    []string{"Numero"},
		Direct:  true,
		Kind:    KindText,
		Missing: MissingAbsent,
		text:    func(r *Record) *Value { return &r.Numero },
	},
	{
		Column:  "Valor do Serviço",
		Path:    []string{"Servico", "Valores", "ValorServicos"},
		Kind:    KindMoney,
		Missing: MissingReject,
		num:     func(r *Record) *float64 { return &r.ValorServicos },
	},
	{
		Column: "Alíquota",
		Kind:   KindConstant,
		text:   func(r *Record) *Value { return &r.Aliquota },
	},
	{
		Column:  "ISS",
		Path:    []string{"ValoresNfse", "ValorIss"},
		Kind:    KindMoney,
		Missing: MissingZeroMarked,
		num:     func(r *Record) *float64 { return &r.ValorISS },
		present: func(r *Record) *bool { return &r.ISSInformado },
	},
	{
		Column:  "ISS Retido",
		Path:    []string{"Servico", "IssRetido"},
		Kind:    KindFlag,
		Missing: MissingZero,
		flag:    func(r *Record) *bool { return &r.ISSRetido },
	},
	{
		Column:  "Data de Emissão",
		Path:    []string{"DataEmissao"},
		Direct:  true,
		Kind:    KindDate,
		Missing: MissingAbsent,
		date:    func(r *Record) *time.Time { return &r.DataEmissao },
	},
	{
		Column:  "Item",
		Path:    []string{"Servico", "ItemListaServico"},
		Kind:    KindText,
		Missing: MissingAbsent,
		text:    func(r *Record) *Value { return &r.ItemListaServico },
	},
	{
		Column:  "Código NBS",
		Path:    []string{"Servico", "CodigoNbs"},
		Kind:    KindText,
		Missing: MissingAbsent,
		text:    func(r *Record) *Value { return &r.CodigoNBS },
	},
	{
		Column:  "CNAE",
		Path:    []string{"Servico", "CodigoCnae"},
		Kind:    KindText,
		Missing: MissingAbsent,
		text:    func(r *Record) *Value { return &r.CodigoCNAE },
	},
	{
		Column:  "Discriminação",
		Path:    []string{"Servico", "Discriminacao"},
		Kind:    KindText,
		Missing: MissingAbsent,
		text:    func(r *Record) *Value { return &r.Discriminacao },
	},
	money("Base de Cálculo IBSCBS", func(r *Record) *float64 { return &r.BaseCalculoIBSCBS }, "IBSCBS", "valores", "vBC"),
	rate("pIBSUF", func(r *Record) *float64 { return &r.PIBSUF }, "IBSCBS", "valores", "uf", "pIBSUF"),
	rate("pRedAliqUF", func(r *Record) *float64 { return &r.PRedAliqUF }, "IBSCBS", "valores", "uf", "pRedAliqUF"),
	rate("pAliqEfetUF", func(r *Record) *float64 { return &r.PAliqEfetUF }, "IBSCBS", "valores", "uf", "pAliqEfetUF"),
	rate("pRedAliqMun", func(r *Record) *float64 { return &r.PRedAliqMun }, "IBSCBS", "valores", "mun", "pRedAliqMun"),
	rate("pCBS", func(r *Record) *float64 { return &r.PCBS }, "IBSCBS", "valores", "fed", "pCBS"),
	rate("pRedAliqCBS", func(r *Record) *float64 { return &r.PRedAliqCBS }, "IBSCBS", "valores", "fed", "pRedAliqCBS"),
	rate("pAliqEfetCBS", func(r *Record) *float64 { return &r.PAliqEfetCBS }, "IBSCBS", "valores", "fed", "pAliqEfetCBS"),
	money("vIBSUF", func(r *Record) *float64 { return &r.VIBSUF }, "IBSCBS", "totCIBS", "gIBS", "gIBSUFTot", "vIBSUF"),
	money("vCBS", func(r *Record) *float64 { return &r.VCBS }, "IBSCBS", "totCIBS", "gCBS", "vCBS"),

	// grupo municipal do layout anterior; continua sendo lido, mas sai do relatório
	legacy(rate("pIBSMun", func(r *Record) *float64 { return &r.PIBSMun }, "IBSCBS", "valores", "mun", "pIBSMun")),
	legacy(rate("pAliqEfetMun", func(r *Record) *float64 { return &r.PAliqEfetMun }, "IBSCBS", "valores", "mun", "pAliqEfetMun")),
	legacy(money("vIBSMun", func(r *Record) *float64 { return &r.VIBSMun }, "IBSCBS", "totCIBS", "gIBS", "gIBSMunTot", "vIBSMun")),
}

func money(column string, num func(*Record) *float64, path ...string) Field {
	return Field{Column: column, Path: path, Kind: KindMoney, Missing: MissingZero, num: num}
}

func rate(column string, num func(*Record) *float64, path ...string) Field {
	return Field{Column: column, Path: path, Kind: KindRate, Missing: MissingZero, num: num}
}

func legacy(f Field) Field {
	f.Legacy = true
	return f
}

// FieldByColumn procura um campo pelo nome da coluna.
func FieldByColumn(column string) (Field, bool) {
	for _, f := range Fields {
		if f.Column == column {
			return f, true
		}
	}
	return Field{}, false
}

// Text devolve o valor textual do campo no registro (KindText, KindDocument, KindConstant).
func (f Field) Text(r *Record) Value {
	if f.text == nil {
		return Absent
	}
	return *f.text(r)
}

// Number devolve o valor numérico do campo no registro (KindMoney, KindRate).
func (f Field) Number(r *Record) float64 {
	if f.num == nil {
		return 0
	}
	return *f.num(r)
}

// Flag devolve o valor booleano do campo (KindFlag).
func (f Field) Flag(r *Record) bool {
	if f.flag == nil {
		return false
	}
	return *f.flag(r)
}

// Date devolve a data do campo (KindDate); zero quando ausente.
func (f Field) Date(r *Record) time.Time {
	if f.date == nil {
		return time.Time{}
	}
	return *f.date(r)
}

// Informed diz se o campo veio no XML. Só faz diferença para MissingZeroMarked;
// os demais campos numéricos respondem true.
func (f Field) Informed(r *Record) bool {
	if f.present == nil {
		return true
	}
	return *f.present(r)
}

// resolve busca o texto bruto do campo dentro de uma InfNfse.
func (f Field) resolve(inf *Node) Value {
	if f.Kind == KindConstant {
		return Absent
	}
	if f.Direct {
		n := inf.child(f.Path)
		if n == nil || n.Text == "" {
			return Absent
		}
		return Present(n.Text)
	}
	if len(f.OneOf) == 0 {
		return lookup(inf, f.Path)
	}

	container := inf.Find(f.Path...)
	if container == nil {
		return Absent
	}
	for _, alt := range f.OneOf {
		if v := lookup(container, alt); v.Present {
			return v
		}
	}
	return Absent
}
