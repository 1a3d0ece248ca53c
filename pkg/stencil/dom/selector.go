package dom

import (
	"fmt"
	"strings"
)

// The selector language is the CSS subset the renderer needs for data-select
// and the include modifiers: tag, #id, .class, [attr], [attr=value], compound
// forms of those, the descendant combinator, and comma-separated lists.

type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrs   []attrSelector
}

type attrSelector struct {
	name     string
	value    string
	hasValue bool
}

// compoundSelector is a chain of simple selectors joined by the descendant
// combinator: the last one must match the node, earlier ones must match
// ancestors in order.
type compoundSelector []simpleSelector

// Selector is a parsed selector list.
type Selector []compoundSelector

// ParseSelector parses a selector string.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("dom: empty selector in %q", s)
		}
		var chain compoundSelector
		for _, word := range strings.Fields(part) {
			simple, err := parseSimple(word)
			if err != nil {
				return nil, err
			}
			chain = append(chain, simple)
		}
		sel = append(sel, chain)
	}
	return sel, nil
}

func parseSimple(s string) (simpleSelector, error) {
	var out simpleSelector
	rest := s
	for rest != "" {
		switch rest[0] {
		case '#':
			token, r := readToken(rest[1:])
			if token == "" {
				return out, fmt.Errorf("dom: invalid selector %q", s)
			}
			out.id = token
			rest = r
		case '.':
			token, r := readToken(rest[1:])
			if token == "" {
				return out, fmt.Errorf("dom: invalid selector %q", s)
			}
			out.classes = append(out.classes, token)
			rest = r
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return out, fmt.Errorf("dom: unterminated attribute selector in %q", s)
			}
			body := rest[1:end]
			rest = rest[end+1:]
			if name, value, found := strings.Cut(body, "="); found {
				value = strings.Trim(value, `"'`)
				out.attrs = append(out.attrs, attrSelector{name: strings.TrimSpace(name), value: value, hasValue: true})
			} else {
				out.attrs = append(out.attrs, attrSelector{name: strings.TrimSpace(body)})
			}
		case '*':
			rest = rest[1:]
		default:
			token, r := readToken(rest)
			if token == "" {
				return out, fmt.Errorf("dom: invalid selector %q", s)
			}
			out.tag = strings.ToLower(token)
			rest = r
		}
	}
	return out, nil
}

func readToken(s string) (token, rest string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '#', '.', '[', ']', '*':
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func (ss simpleSelector) matches(n *Node) bool {
	if n.Type != ElementNode {
		return false
	}
	if ss.tag != "" && n.Tag != ss.tag {
		return false
	}
	if ss.id != "" {
		if id, _ := n.Attr("id"); id != ss.id {
			return false
		}
	}
	if len(ss.classes) > 0 {
		class, _ := n.Attr("class")
		have := strings.Fields(class)
		for _, want := range ss.classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, as := range ss.attrs {
		v, ok := n.Attr(as.name)
		if !ok {
			return false
		}
		if as.hasValue && v != as.value {
			return false
		}
	}
	return true
}

func (cs compoundSelector) matches(n *Node) bool {
	if len(cs) == 0 {
		return false
	}
	if !cs[len(cs)-1].matches(n) {
		return false
	}
	// Remaining selectors must match ancestors, innermost-out.
	idx := len(cs) - 2
	for anc := n.Parent; anc != nil && idx >= 0; anc = anc.Parent {
		if cs[idx].matches(anc) {
			idx--
		}
	}
	return idx < 0
}

// Matches reports whether the node matches any selector in the list.
func (s Selector) Matches(n *Node) bool {
	for _, cs := range s {
		if cs.matches(n) {
			return true
		}
	}
	return false
}

// Select returns the first descendant of n (excluding n itself) matching the
// selector, or nil.
func (n *Node) Select(selector string) (*Node, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	var found *Node
	n.Walk(func(d *Node) bool {
		if found != nil {
			return false
		}
		if d != n && sel.Matches(d) {
			found = d
			return false
		}
		return true
	})
	return found, nil
}

// SelectAll returns all descendants of n (excluding n itself) matching the
// selector, in document order.
func (n *Node) SelectAll(selector string) ([]*Node, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	var out []*Node
	n.Walk(func(d *Node) bool {
		if d != n && sel.Matches(d) {
			out = append(out, d)
		}
		return true
	})
	return out, nil
}
