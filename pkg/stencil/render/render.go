// Package render implements the stencil directive interpreter: a depth-first
// walk over a document tree that dispatches each node's directive against an
// execution context, mutating the tree in place into displayable content.
//
// Failures raised while dispatching one directive never abort the walk. They
// are converted into error attributes on the offending node and rendering
// continues with the node's siblings, so one broken directive leaves the rest
// of the document fully rendered.
package render

import (
	"fmt"
	"strings"

	"github.com/stencila/stencila-sub009/pkg/stencil/contexts"
	"github.com/stencila/stencila-sub009/pkg/stencil/directive"
	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
	"github.com/stencila/stencila-sub009/pkg/stencil/errors"
)

// Render walks the document and evaluates its directives against ctx. The
// tree and the context are owned exclusively by the call until it returns.
//
// Only contract violations are returned as errors; content-driven failures
// are recorded on the nodes that raised them.
func Render(doc *dom.Node, ctx contexts.Context, opts ...Option) error {
	if doc == nil {
		return fmt.Errorf("render: nil document")
	}
	if ctx == nil {
		return fmt.Errorf("render: nil context")
	}
	st := &State{ctx: ctx}
	for _, opt := range opts {
		opt(st)
	}
	st.walk(doc)
	return nil
}

// walk dispatches one node. Locked subtrees are preserved verbatim; directive
// precedence and failure isolation follow the dispatch rules below.
func (st *State) walk(n *dom.Node) {
	if n.Type != dom.ElementNode {
		return
	}
	if n.HasAttr(directive.AttrLock) {
		return
	}
	directive.ClearErrors(n)

	d := directive.Parse(n)
	if d == nil {
		st.renderChildren(n)
		return
	}
	if d.Err != nil {
		// A directive that does not parse never fires; its content is left
		// untouched.
		annotate(n, d.Err)
		return
	}

	switch d.Kind {
	case directive.Exec:
		st.exec(n, d)
	case directive.If:
		st.branch(n, d)
	case directive.Elif, directive.Else:
		// Chain members are handled from their chain head; reaching one here
		// means there is no preceding if.
		annotate(n, errors.New("syntax", map[string]any{
			"Directive": d.Kind.String(),
			"Reason":    "no preceding if in the sibling chain",
		}))
	case directive.Switch:
		st.selection(n, d)
	case directive.Case, directive.Default:
		annotate(n, errors.NewSimple(errors.ClassSubject, "no-subject", d.Kind.String()+" used without an enclosing switch"))
	case directive.For:
		st.loop(n, d)
	case directive.Each:
		// A loop body template renders only through its for loop.
	case directive.With:
		st.with(n, d)
	case directive.Include:
		st.include(n, d)
	case directive.Macro:
		// Macro bodies render only when reached via include.
		n.SetAttr(directive.AttrOff, "")
	case directive.Param, directive.Set,
		directive.Delete, directive.Replace, directive.Change,
		directive.Before, directive.After, directive.Prepend, directive.Append:
		// Inert where encountered: parameters bind during include, and the
		// structural modifiers are consumed by their include node.
	case directive.Text, directive.Write:
		st.text(n, d)
	}
}

// renderChildren walks each child in order, skipping chain members that are
// resolved from their chain head.
func (st *State) renderChildren(n *dom.Node) {
	snapshot := make([]*dom.Node, len(n.Children))
	copy(snapshot, n.Children)

	prev := directive.None
	for _, c := range snapshot {
		if c.Type != dom.ElementNode {
			continue
		}
		kind := directive.None
		if d := directive.Parse(c); d != nil {
			kind = d.Kind
		}
		if (kind == directive.Elif || kind == directive.Else) &&
			(prev == directive.If || prev == directive.Elif) {
			prev = kind
			continue
		}
		st.walk(c)
		prev = kind
	}
}

// branch resolves an if/elif/else sibling chain from its head. Exactly one
// branch ends up without the off flag, or none when every condition is false
// and there is no else.
func (st *State) branch(n *dom.Node, d *directive.Directive) {
	taken := false

	on, err := st.ctx.Test(d.Expr)
	if err != nil {
		annotate(n, err)
		n.SetAttr(directive.AttrOff, "")
	} else if on {
		n.UnsetAttr(directive.AttrOff)
		st.renderChildren(n)
		taken = true
	} else {
		n.SetAttr(directive.AttrOff, "")
	}

	for c := n.NextElement(); c != nil; c = c.NextElement() {
		cd := directive.Parse(c)
		if cd == nil {
			break
		}
		switch cd.Kind {
		case directive.Elif:
			directive.ClearErrors(c)
			if taken {
				c.SetAttr(directive.AttrOff, "")
				continue
			}
			if cd.Err != nil {
				annotate(c, cd.Err)
				c.SetAttr(directive.AttrOff, "")
				continue
			}
			on, err := st.ctx.Test(cd.Expr)
			if err != nil {
				annotate(c, err)
				c.SetAttr(directive.AttrOff, "")
				continue
			}
			if on {
				c.UnsetAttr(directive.AttrOff)
				st.renderChildren(c)
				taken = true
			} else {
				c.SetAttr(directive.AttrOff, "")
			}
		case directive.Else:
			directive.ClearErrors(c)
			if taken {
				c.SetAttr(directive.AttrOff, "")
			} else {
				c.UnsetAttr(directive.AttrOff)
				st.renderChildren(c)
			}
			return
		default:
			return
		}
	}
}

// selection resolves a switch block: the subject is pushed for the duration
// of the subtree, the first matching case is activated, and default catches
// the rest.
func (st *State) selection(n *dom.Node, d *directive.Directive) {
	if err := st.ctx.Subject(d.Expr); err != nil {
		annotate(n, err)
		return
	}
	defer st.ctx.Unsubject()

	matched := false
	var defaults []*dom.Node

	for _, c := range n.ElementChildren() {
		if c.HasAttr(directive.AttrLock) {
			continue
		}
		cd := directive.Parse(c)
		if cd == nil {
			st.walk(c)
			continue
		}
		switch cd.Kind {
		case directive.Case:
			directive.ClearErrors(c)
			if matched {
				c.SetAttr(directive.AttrOff, "")
				continue
			}
			if cd.Err != nil {
				annotate(c, cd.Err)
				c.SetAttr(directive.AttrOff, "")
				continue
			}
			on, err := st.ctx.Match(cd.Expr)
			if err != nil {
				annotate(c, err)
				c.SetAttr(directive.AttrOff, "")
				continue
			}
			if on {
				c.UnsetAttr(directive.AttrOff)
				st.renderChildren(c)
				matched = true
			} else {
				c.SetAttr(directive.AttrOff, "")
			}
		case directive.Default:
			directive.ClearErrors(c)
			defaults = append(defaults, c)
		default:
			st.walk(c)
		}
	}

	for i, c := range defaults {
		if !matched && i == 0 {
			c.UnsetAttr(directive.AttrOff)
			st.renderChildren(c)
		} else {
			c.SetAttr(directive.AttrOff, "")
		}
	}
}

// with renders children against a narrower scope.
func (st *State) with(n *dom.Node, d *directive.Directive) {
	if err := st.ctx.Enter(d.Expr); err != nil {
		annotate(n, err)
		return
	}
	defer st.ctx.Exit()
	st.renderChildren(n)
}

// text replaces the node's content with the evaluated expression. Locked
// nodes never reach here; their manual edits survive.
func (st *State) text(n *dom.Node, d *directive.Directive) {
	value, err := st.ctx.Text(d.Expr)
	if err != nil {
		annotate(n, err)
		return
	}
	n.SetText(value)
}

// exec delegates the node's code to the context when it accepts one of the
// declared language backends.
func (st *State) exec(n *dom.Node, d *directive.Directive) {
	accepted := ""
	for _, lang := range d.Langs {
		if st.ctx.Accepts(lang) {
			accepted = lang
			break
		}
	}
	if accepted == "" {
		annotate(n, errors.New("not-supported", map[string]any{
			"Operation": "execution of " + strings.Join(d.Langs, ", ") + " code",
		}))
		return
	}
	if err := st.ctx.Execute(n.Text()); err != nil {
		annotate(n, err)
	}
}
