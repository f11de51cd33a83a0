// Package nfsetest monta XMLs e ZIPs de NFS-e para os testes dos outros pacotes.
package nfsetest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// Invoice descreve uma InfNfse. Campo vazio = elemento omitido no XML.
type Invoice struct {
	Numero        string
	DataEmissao   string
	ValorIss      string
	ValorServicos string
	IssRetido     string
	Item          string
	CodigoCnae    string
	CodigoNbs     string
	Discriminacao string
	Cpf           string
	Cnpj          string
	RazaoSocial   string
	NoTomador     bool // sem IdentificacaoTomador/CpfCnpj

	IBSCBS bool // inclui o grupo IBSCBS com os valores de Full
}

// Full devolve uma nota com todos os campos preenchidos.
func Full(numero string) Invoice {
	return Invoice{
		Numero:        numero,
		DataEmissao:   "2025-03-10T14:22:05-03:00",
		ValorIss:      "45.00",
		ValorServicos: "1500.00",
		IssRetido:     "1",
		Item:          "01.07",
		CodigoCnae:    "6201501",
		CodigoNbs:     "115013000",
		Discriminacao: "Desenvolvimento de software",
		Cnpj:          "12345678000195",
		RazaoSocial:   "ACME SERVICOS LTDA",
		IBSCBS:        true,
	}
}

// Document monta um ConsultarNfseResposta com as notas informadas.
func Document(invoices ...Invoice) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<ConsultarNfseResposta xmlns="http://www.abrasf.org.br/nfse.xsd"><ListaNfse>`)
	for _, inv := range invoices {
		b.WriteString(`<CompNfse><Nfse versao="2.04"><InfNfse Id="nfse">`)
		b.WriteString(invoiceBody(inv))
		b.WriteString(`</InfNfse></Nfse></CompNfse>`)
	}
	b.WriteString(`</ListaNfse></ConsultarNfseResposta>`)
	return b.String()
}

func invoiceBody(inv Invoice) string {
	var b strings.Builder
	elem(&b, "Numero", inv.Numero)
	elem(&b, "DataEmissao", inv.DataEmissao)
	if inv.ValorIss != "" {
		b.WriteString("<ValoresNfse>")
		elem(&b, "ValorIss", inv.ValorIss)
		b.WriteString("</ValoresNfse>")
	}

	b.WriteString("<DeclaracaoPrestacaoServico><InfDeclaracaoPrestacaoServico>")
	// a RPS também tem Numero e DataEmissao; a busca precisa pegar os da nota
	b.WriteString("<Rps><IdentificacaoRps><Numero>999999</Numero></IdentificacaoRps><DataEmissao>2001-01-01</DataEmissao></Rps>")

	b.WriteString("<Servico>")
	if inv.ValorServicos != "" {
		b.WriteString("<Valores>")
		elem(&b, "ValorServicos", inv.ValorServicos)
		b.WriteString("</Valores>")
	}
	elem(&b, "IssRetido", inv.IssRetido)
	elem(&b, "ItemListaServico", inv.Item)
	elem(&b, "CodigoCnae", inv.CodigoCnae)
	elem(&b, "CodigoNbs", inv.CodigoNbs)
	elem(&b, "Discriminacao", inv.Discriminacao)
	b.WriteString("</Servico>")

	b.WriteString("<Tomador>")
	if !inv.NoTomador {
		b.WriteString("<IdentificacaoTomador><CpfCnpj>")
		elem(&b, "Cpf", inv.Cpf)
		elem(&b, "Cnpj", inv.Cnpj)
		b.WriteString("</CpfCnpj></IdentificacaoTomador>")
	}
	elem(&b, "RazaoSocial", inv.RazaoSocial)
	b.WriteString("</Tomador>")
	b.WriteString("</InfDeclaracaoPrestacaoServico></DeclaracaoPrestacaoServico>")

	if inv.IBSCBS {
		b.WriteString(ibscbs)
	}
	return b.String()
}

const ibscbs = `<IBSCBS><valores><vBC>1500.00</vBC>` +
	`<uf><pIBSUF>0.10</pIBSUF><pRedAliqUF>0.00</pRedAliqUF><pAliqEfetUF>0.10</pAliqEfetUF></uf>` +
	`<mun><pIBSMun>0.05</pIBSMun><pRedAliqMun>0.00</pRedAliqMun><pAliqEfetMun>0.05</pAliqEfetMun></mun>` +
	`<fed><pCBS>0.90</pCBS><pRedAliqCBS>0.00</pRedAliqCBS><pAliqEfetCBS>0.90</pAliqEfetCBS></fed></valores>` +
	`<totCIBS><gIBS><gIBSUFTot><vIBSUF>1.50</vIBSUF></gIBSUFTot><gIBSMunTot><vIBSMun>0.75</vIBSMun></gIBSMunTot></gIBS>` +
	`<gCBS><vCBS>13.50</vCBS></gCBS></totCIBS></IBSCBS>`

func elem(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<%s>%s</%s>", name, value, name)
}

// Entry é um arquivo dentro do ZIP de teste.
type Entry struct {
	Name string
	Body string
}

// Zip monta um ZIP em memória com as entradas na ordem informada.
func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.Name, err)
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
