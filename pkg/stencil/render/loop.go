package render

import (
	"strconv"

	"github.com/stencila/stencila-sub009/pkg/stencil/directive"
	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
	"github.com/stencila/stencila-sub009/pkg/stencil/errors"
)

// loop renders a for directive. The loop expression is evaluated once at
// entry; the body template (the child marked data-each, or the first element
// child) is instantiated once per item, each instance stamped with its
// positional data-index.
//
// Re-rendering reconciles by index: instances whose index is still in range
// are re-rendered in place, which preserves locked descendants; instances
// beyond the new item count are removed unless they hold a locked node, in
// which case they are kept and flagged data-extra. The extra flag is
// monotonic — the renderer never clears it.
func (st *State) loop(n *dom.Node, d *directive.Directive) {
	template := loopTemplate(n)
	if template == nil {
		annotate(n, errors.New("syntax", map[string]any{
			"Directive": "for",
			"Reason":    "loop has no body element",
		}))
		return
	}
	// The template itself never displays; instances are clones of it.
	template.SetAttr(directive.AttrEach, "")
	template.SetAttr(directive.AttrOff, "")

	has, err := st.ctx.Begin(d.Item, d.Expr)
	if err != nil {
		annotate(n, err)
		return
	}
	defer st.ctx.End()

	count := 0
	for has {
		instance := loopInstance(n, count)
		if instance == nil {
			instance = template.Clone()
			instance.UnsetAttr(directive.AttrEach)
			instance.UnsetAttr(directive.AttrOff)
			instance.SetAttr(directive.AttrIndex, strconv.Itoa(count))
			n.Append(instance)
		}
		st.walk(instance)
		count++

		more, err := st.ctx.Next()
		if err != nil {
			annotate(n, err)
			break
		}
		has = more
	}

	reconcile(n, count)
}

// loopTemplate finds the loop body: the element child marked data-each, or
// the first element child without a data-index stamp.
func loopTemplate(n *dom.Node) *dom.Node {
	for _, c := range n.ElementChildren() {
		if c.HasAttr(directive.AttrEach) {
			return c
		}
	}
	for _, c := range n.ElementChildren() {
		if !c.HasAttr(directive.AttrIndex) {
			return c
		}
	}
	return nil
}

// loopInstance finds the previously rendered instance for an index.
func loopInstance(n *dom.Node, index int) *dom.Node {
	want := strconv.Itoa(index)
	for _, c := range n.ElementChildren() {
		if v, ok := c.Attr(directive.AttrIndex); ok && v == want {
			return c
		}
	}
	return nil
}

// reconcile removes instances whose index now exceeds the item count, except
// those protecting a locked node, which are retained and flagged extra.
func reconcile(n *dom.Node, count int) {
	for _, c := range n.ElementChildren() {
		v, ok := c.Attr(directive.AttrIndex)
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(v)
		if err != nil || idx < count {
			continue
		}
		if hasLocked(c) {
			c.SetAttr(directive.AttrExtra, "")
		} else {
			n.RemoveChild(c)
		}
	}
}

// hasLocked reports whether the node or any descendant carries the lock flag.
func hasLocked(n *dom.Node) bool {
	locked := false
	n.Walk(func(d *dom.Node) bool {
		if d.Type == dom.ElementNode && d.HasAttr(directive.AttrLock) {
			locked = true
			return false
		}
		return !locked
	})
	return locked
}
