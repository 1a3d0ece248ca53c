package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Void elements never have children and serialize without a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Parse reads an HTML fragment and returns it as a tree rooted at a synthetic
// "div" element. The goal is to keep the tree as close to the source as
// possible: no implied html/head/body scaffolding is added, and element order
// is preserved exactly.
func Parse(r io.Reader) (*Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dom: reading source: %w", err)
	}
	return ParseString(string(src))
}

// ParseString parses an HTML fragment held in a string. See Parse.
func ParseString(src string) (*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parsing fragment: %w", err)
	}
	root := NewElement("div")
	root.SetAttr("data-root", "")
	for _, hn := range nodes {
		if c := convert(hn); c != nil {
			root.Append(c)
		}
	}
	return root, nil
}

func convert(hn *html.Node) *Node {
	switch hn.Type {
	case html.ElementNode:
		n := NewElement(hn.Data)
		for _, a := range hn.Attr {
			n.Attrs = append(n.Attrs, Attr{Name: a.Key, Value: a.Val})
		}
		for c := hn.FirstChild; c != nil; c = c.NextSibling {
			if cc := convert(c); cc != nil {
				n.Append(cc)
			}
		}
		return n
	case html.TextNode:
		return NewText(hn.Data)
	case html.CommentNode:
		return &Node{Type: CommentNode, Data: hn.Data}
	default:
		return nil
	}
}

// Serialize writes the node and its descendants as HTML. The synthetic
// fragment root produced by Parse is not written, only its children.
func Serialize(w io.Writer, n *Node) error {
	if n.Type == ElementNode && n.HasAttr("data-root") {
		for _, c := range n.Children {
			if err := serialize(w, c); err != nil {
				return err
			}
		}
		return nil
	}
	return serialize(w, n)
}

// SerializeString returns the node serialized as HTML.
func SerializeString(n *Node) string {
	var sb strings.Builder
	Serialize(&sb, n) // strings.Builder never errors
	return sb.String()
}

func serialize(w io.Writer, n *Node) error {
	switch n.Type {
	case TextNode:
		_, err := io.WriteString(w, html.EscapeString(n.Data))
		return err
	case CommentNode:
		_, err := fmt.Fprintf(w, "<!--%s-->", n.Data)
		return err
	}
	if _, err := fmt.Fprintf(w, "<%s", n.Tag); err != nil {
		return err
	}
	for _, a := range n.Attrs {
		if a.Value == "" {
			if _, err := fmt.Fprintf(w, " %s", a.Name); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, ` %s="%s"`, a.Name, html.EscapeString(a.Value)); err != nil {
			return err
		}
	}
	if voidElements[n.Tag] {
		_, err := io.WriteString(w, ">")
		return err
	}
	if _, err := io.WriteString(w, ">"); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := serialize(w, c); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "</%s>", n.Tag)
	return err
}
