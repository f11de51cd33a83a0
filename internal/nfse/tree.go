package nfse

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Namespace é o único layout de NFS-e suportado (ABRASF).
const Namespace = "http://www.abrasf.org.br/nfse.xsd"

// ErrEmptyDocument indica um XML sem elemento raiz.
var ErrEmptyDocument = errors.New("documento XML sem elemento raiz")

// Node é um elemento do XML já carregado em memória.
type Node struct {
	Space    string
	Local    string
	Text     string
	Children []*Node
}

// ParseTree lê o documento inteiro e monta a árvore de elementos.
// XML malformado devolve erro; quem chama decide descartar o documento.
func ParseTree(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	// notas de prefeituras antigas ainda vêm em ISO-8859-1
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *Node
		stack []*Node
		text  []bytes.Buffer
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("erro lendo XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Space: t.Name.Space, Local: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("erro lendo XML: mais de um elemento raiz (%s)", t.Name.Local)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
			text = append(text, bytes.Buffer{})

		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}

		case xml.EndElement:
			n := stack[len(stack)-1]
			n.Text = strings.TrimSpace(text[len(text)-1].String())
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}

	if root == nil {
		return nil, ErrEmptyDocument
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("erro lendo XML: elemento %s não foi fechado", stack[len(stack)-1].Local)
	}
	return root, nil
}

func (n *Node) is(local string) bool {
	return n.Space == Namespace && n.Local == local
}

// walk percorre os descendentes (sem incluir n) em ordem de documento.
// Para quando fn devolve false.
func (n *Node) walk(fn func(*Node) bool) bool {
	for _, c := range n.Children {
		if !fn(c) {
			return false
		}
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

// FindAll devolve todos os descendentes com o nome local informado, no namespace ABRASF.
func (n *Node) FindAll(local string) []*Node {
	var out []*Node
	n.walk(func(c *Node) bool {
		if c.is(local) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Find resolve um caminho do tipo ".//A/B/C": o primeiro A em qualquer
// profundidade abaixo de n que tenha filho B com filho C.
func (n *Node) Find(path ...string) *Node {
	if n == nil || len(path) == 0 {
		return nil
	}

	var found *Node
	n.walk(func(c *Node) bool {
		if !c.is(path[0]) {
			return true
		}
		found = c.child(path[1:])
		return found == nil
	})
	return found
}

func (n *Node) child(path []string) *Node {
	if len(path) == 0 {
		return n
	}
	for _, c := range n.Children {
		if !c.is(path[0]) {
			continue
		}
		if found := c.child(path[1:]); found != nil {
			return found
		}
	}
	return nil
}
