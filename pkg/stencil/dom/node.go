// Package dom provides the mutable element tree that stencil documents are
// rendered against. The tree is deliberately small: elements with ordered
// attributes, ordered children, and text, plus the mutation and query surface
// the renderer needs. Parsing and serialization are built on the tokenizer
// from golang.org/x/net/html.
package dom

import "strings"

// NodeType distinguishes elements from text content.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
	CommentNode
)

// Attr is a single name/value attribute. Attributes keep document order so
// that serialization is stable across renders.
type Attr struct {
	Name  string
	Value string
}

// Node is one node of the document tree. Elements own their children; the
// renderer mutates nodes in place through this surface and never takes
// ownership of the tree.
type Node struct {
	Type     NodeType
	Tag      string // element tag, lowercased
	Data     string // text or comment content
	Attrs    []Attr
	Children []*Node
	Parent   *Node
}

// NewElement creates a detached element node.
func NewElement(tag string) *Node {
	return &Node{Type: ElementNode, Tag: strings.ToLower(tag)}
}

// NewText creates a detached text node.
func NewText(text string) *Node {
	return &Node{Type: TextNode, Data: text}
}

// Attr returns the value of the named attribute and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// HasAttr reports whether the named attribute is present, regardless of value.
func (n *Node) HasAttr(name string) bool {
	_, ok := n.Attr(name)
	return ok
}

// SetAttr sets the named attribute, replacing an existing value in place so
// attribute order is preserved.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// UnsetAttr removes the named attribute if present.
func (n *Node) UnsetAttr(name string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// Text returns the concatenated text content of the node and its descendants.
func (n *Node) Text() string {
	var sb strings.Builder
	n.appendText(&sb)
	return sb.String()
}

func (n *Node) appendText(sb *strings.Builder) {
	if n.Type == TextNode {
		sb.WriteString(n.Data)
		return
	}
	for _, c := range n.Children {
		c.appendText(sb)
	}
}

// SetText replaces the node's children with a single text node.
func (n *Node) SetText(text string) {
	for _, c := range n.Children {
		c.Parent = nil
	}
	t := NewText(text)
	t.Parent = n
	n.Children = []*Node{t}
}

// Append adds child as the last child of n.
func (n *Node) Append(child *Node) {
	child.Detach()
	child.Parent = n
	n.Children = append(n.Children, child)
}

// Prepend adds child as the first child of n.
func (n *Node) Prepend(child *Node) {
	child.Detach()
	child.Parent = n
	n.Children = append([]*Node{child}, n.Children...)
}

// InsertBefore inserts child immediately before ref among n's children.
// If ref is not a child of n, child is appended.
func (n *Node) InsertBefore(child, ref *Node) {
	child.Detach()
	for i, c := range n.Children {
		if c == ref {
			child.Parent = n
			n.Children = append(n.Children[:i], append([]*Node{child}, n.Children[i:]...)...)
			return
		}
	}
	n.Append(child)
}

// InsertAfter inserts child immediately after ref among n's children.
// If ref is not a child of n, child is appended.
func (n *Node) InsertAfter(child, ref *Node) {
	child.Detach()
	for i, c := range n.Children {
		if c == ref {
			child.Parent = n
			rest := append([]*Node{child}, n.Children[i+1:]...)
			n.Children = append(n.Children[:i+1], rest...)
			return
		}
	}
	n.Append(child)
}

// ReplaceChild replaces old with new among n's children.
func (n *Node) ReplaceChild(newChild, old *Node) {
	for i, c := range n.Children {
		if c == old {
			newChild.Detach()
			newChild.Parent = n
			old.Parent = nil
			n.Children[i] = newChild
			return
		}
	}
}

// RemoveChild removes child from n's children.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			child.Parent = nil
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Detach removes n from its parent, if any.
func (n *Node) Detach() {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Clear removes all children of n.
func (n *Node) Clear() {
	for _, c := range n.Children {
		c.Parent = nil
	}
	n.Children = nil
}

// Clone returns a deep copy of the node, detached from any parent.
func (n *Node) Clone() *Node {
	c := &Node{Type: n.Type, Tag: n.Tag, Data: n.Data}
	if n.Attrs != nil {
		c.Attrs = make([]Attr, len(n.Attrs))
		copy(c.Attrs, n.Attrs)
	}
	for _, child := range n.Children {
		cc := child.Clone()
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// ElementChildren returns the element children of n, skipping text and
// comment nodes.
func (n *Node) ElementChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// NextElement returns the next element sibling of n, or nil.
func (n *Node) NextElement() *Node {
	if n.Parent == nil {
		return nil
	}
	seen := false
	for _, c := range n.Parent.Children {
		if c == n {
			seen = true
			continue
		}
		if seen && c.Type == ElementNode {
			return c
		}
	}
	return nil
}

// Walk visits n and every descendant in document order. Returning false from
// fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	// Children may be mutated during the walk; iterate over a snapshot.
	snapshot := make([]*Node, len(n.Children))
	copy(snapshot, n.Children)
	for _, c := range snapshot {
		c.Walk(fn)
	}
}
