package nfse

// Ausente é o texto exibido quando o campo não existe no XML.
const Ausente = "N/A"

// Value é o resultado de uma busca no XML: presente com texto, ou ausente.
type Value struct {
	Text    string
	Present bool
}

// Absent é o valor zero de Value, deixado explícito para leitura.
var Absent = Value{}

func Present(text string) Value {
	return Value{Text: text, Present: true}
}

// String devolve o texto ou o marcador de ausente.
func (v Value) String() string {
	if !v.Present {
		return Ausente
	}
	return v.Text
}

// lookup resolve um caminho a partir de n. Nó faltando em qualquer nível
// (ou nó sem texto) vira Absent.
func lookup(n *Node, path []string) Value {
	found := n.Find(path...)
	if found == nil || found.Text == "" {
		return Absent
	}
	return Present(found.Text)
}
