package nfse

import (
	"io"
)

// Rejected é uma InfNfse que não virou registro.
type Rejected struct {
	Index  int // posição da InfNfse no documento, a partir de 0
	Numero string
	Err    error
}

// Parsed é o resultado de um documento: registros na ordem das InfNfse
// e as notas descartadas.
type Parsed struct {
	Records  []Record
	Rejected []Rejected
}

// ParseDocument lê um XML de NFS-e e devolve um registro por InfNfse.
// Erro só quando o XML não pode ser lido; documento sem InfNfse devolve zero registros.
func ParseDocument(r io.Reader) (Parsed, error) {
	root, err := ParseTree(r)
	if err != nil {
		return Parsed{}, err
	}

	var p Parsed
	for i, raw := range Extract(root) {
		rec, err := Normalize(raw)
		if err != nil {
			p.Rejected = append(p.Rejected, Rejected{
				Index:  i,
				Numero: raw["Número NFS-e"].String(),
				Err:    err,
			})
			continue
		}
		p.Records = append(p.Records, rec)
	}
	return p, nil
}
