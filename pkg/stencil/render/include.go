package render

import (
	"strings"

	"github.com/stencila/stencila-sub009/pkg/stencil/directive"
	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
	"github.com/stencila/stencila-sub009/pkg/stencil/errors"
)

// include resolves an include directive: the address is opened through the
// store, the optional selector extracts a sub-forest, and a fresh copy is
// spliced under a managed child marked data-included. Declared parameters are
// bound from the includer's data-set assignments inside a fresh frame, and
// the structural modifiers among the include node's children are applied to
// the spliced copy before it renders.
func (st *State) include(n *dom.Node, d *directive.Directive) {
	if st.store == nil {
		annotate(n, errors.New("include-not-found", map[string]any{
			"Address": d.Address,
			"Reason":  "no document store attached",
		}))
		return
	}

	address, fragment, _ := strings.Cut(d.Address, "#")
	selector := d.Selector
	if selector == "" && fragment != "" {
		selector = "#" + fragment
	}

	if st.entering(address) {
		chain := append(append([]string{}, st.includes...), address)
		annotate(n, errors.New("include-cycle", map[string]any{
			"Chain": strings.Join(chain, " -> "),
		}))
		return
	}
	defer st.leaving()

	doc, err := st.store.Open(address)
	if err != nil {
		annotate(n, errors.New("include-not-found", map[string]any{
			"Address": address,
			"Reason":  err.Error(),
		}))
		return
	}

	content, rerr := selectContent(doc, address, selector)
	if rerr != nil {
		annotate(n, rerr)
		return
	}

	incl := includedChild(n)
	clearExceptLocked(incl)
	for _, c := range content {
		incl.Append(c)
	}

	for _, c := range n.ElementChildren() {
		md := directive.Parse(c)
		if md == nil {
			continue
		}
		switch md.Kind {
		case directive.Delete, directive.Replace, directive.Change,
			directive.Before, directive.After, directive.Prepend, directive.Append:
			if md.Err != nil {
				annotate(c, md.Err)
				continue
			}
			if err := applyModifier(incl, md, c); err != nil {
				annotate(c, err)
			}
		}
	}

	// Parameters bind inside a document-boundary frame that also scopes the
	// included content's rendering.
	if err := st.ctx.Enter(""); err != nil {
		annotate(n, err)
		return
	}
	defer st.ctx.Exit()

	if !st.bindParams(n, incl) {
		// A required parameter is missing: the fragment stays spliced but
		// none of its expressions are evaluated.
		return
	}
	st.renderChildren(incl)
}

// selectContent clones the included sub-forest: the selector's matches, or
// the whole fragment when no selector is given. Macro roots are unwrapped so
// their bodies render at the inclusion site.
func selectContent(doc *dom.Node, address, selector string) ([]*dom.Node, *errors.RenderError) {
	var picked []*dom.Node
	if selector != "" {
		matches, err := doc.SelectAll(selector)
		if err != nil {
			return nil, errors.New("syntax", map[string]any{"Directive": "select", "Reason": err.Error()})
		}
		if len(matches) == 0 {
			return nil, errors.New("include-select", map[string]any{"Selector": selector, "Address": address})
		}
		picked = matches
	} else {
		picked = doc.Children
	}

	var content []*dom.Node
	for _, m := range picked {
		c := m.Clone()
		if c.Type == dom.ElementNode && c.HasAttr(directive.AttrMacro) {
			c.UnsetAttr(directive.AttrMacro)
			c.UnsetAttr(directive.AttrOff)
		}
		content = append(content, c)
	}
	return content, nil
}

// includedChild returns the managed subtree for spliced content, creating it
// on first render.
func includedChild(n *dom.Node) *dom.Node {
	for _, c := range n.ElementChildren() {
		if c.HasAttr(directive.AttrIncluded) {
			return c
		}
	}
	incl := dom.NewElement("div")
	incl.SetAttr(directive.AttrIncluded, "")
	n.Append(incl)
	return incl
}

// clearExceptLocked removes the previous render's content, keeping subtrees
// that hold a locked node.
func clearExceptLocked(incl *dom.Node) {
	snapshot := make([]*dom.Node, len(incl.Children))
	copy(snapshot, incl.Children)
	for _, c := range snapshot {
		if c.Type == dom.ElementNode && hasLocked(c) {
			continue
		}
		incl.RemoveChild(c)
	}
}

// bindParams binds every data-par declared in the spliced content from the
// include node's data-set assignments, falling back to declared defaults. It
// reports false when a required parameter has no binding.
func (st *State) bindParams(n, incl *dom.Node) bool {
	sets := map[string]string{}
	for _, c := range n.ElementChildren() {
		sd := directive.Parse(c)
		if sd == nil || sd.Kind != directive.Set {
			continue
		}
		if sd.Err != nil {
			annotate(c, sd.Err)
			continue
		}
		sets[sd.Name] = sd.Value
	}

	ok := true
	incl.Walk(func(c *dom.Node) bool {
		pd := directive.Parse(c)
		if pd == nil || pd.Kind != directive.Param {
			return true
		}
		if pd.Err != nil {
			annotate(c, pd.Err)
			return true
		}
		switch {
		case sets[pd.Name] != "":
			if err := st.ctx.Assign(pd.Name, sets[pd.Name]); err != nil {
				annotate(n, err)
				ok = false
			}
		case pd.HasDefault:
			if err := st.ctx.Assign(pd.Name, pd.Default); err != nil {
				annotate(c, err)
				ok = false
			}
		default:
			annotate(n, errors.New("par-required", map[string]any{"Name": pd.Name}))
			ok = false
		}
		return true
	})
	return ok
}

// applyModifier applies one structural modifier to the first node the
// selector matches inside the spliced content. The modifier node's children
// supply the substituted or inserted content.
func applyModifier(incl *dom.Node, md *directive.Directive, mod *dom.Node) *errors.RenderError {
	match, err := incl.Select(md.Selector)
	if err != nil {
		return errors.New("syntax", map[string]any{"Directive": md.Kind.String(), "Reason": err.Error()})
	}
	if match == nil {
		return errors.New("include-select", map[string]any{"Selector": md.Selector, "Address": "included content"})
	}

	content := func() []*dom.Node {
		var out []*dom.Node
		for _, c := range mod.Children {
			out = append(out, c.Clone())
		}
		return out
	}

	switch md.Kind {
	case directive.Delete:
		match.Detach()
	case directive.Replace:
		parent := match.Parent
		for _, c := range content() {
			parent.InsertBefore(c, match)
		}
		match.Detach()
	case directive.Change:
		match.Clear()
		for _, c := range content() {
			match.Append(c)
		}
	case directive.Before:
		parent := match.Parent
		for _, c := range content() {
			parent.InsertBefore(c, match)
		}
	case directive.After:
		parent := match.Parent
		ref := match
		for _, c := range content() {
			parent.InsertAfter(c, ref)
			ref = c
		}
	case directive.Prepend:
		cs := content()
		for i := len(cs) - 1; i >= 0; i-- {
			match.Prepend(cs[i])
		}
	case directive.Append:
		for _, c := range content() {
			match.Append(c)
		}
	}
	return nil
}
