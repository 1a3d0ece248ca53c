package render

import (
	"github.com/stencila/stencila-sub009/pkg/stencil/contexts"
	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
	"github.com/stencila/stencila-sub009/pkg/stencil/errors"
	"github.com/stencila/stencila-sub009/pkg/stencil/store"
)

// State carries everything a render-in-progress needs. It is created by
// Render and passed explicitly through every dispatch call; no renderer state
// hides in globals or instance fields. Context pushes (frames, loops,
// subjects) are paired with deferred pops inside the handlers that perform
// them, so every exit path releases exactly what it acquired.
type State struct {
	ctx   contexts.Context
	store store.Store

	// includes is the chain of include addresses currently being rendered,
	// used to refuse include cycles.
	includes []string
}

// Option configures a render.
type Option func(*State)

// WithStore attaches the document store used to resolve includes.
func WithStore(s store.Store) Option {
	return func(st *State) { st.store = s }
}

// entering pushes an include address onto the active chain and reports
// whether it was already present (a cycle).
func (st *State) entering(address string) bool {
	for _, a := range st.includes {
		if a == address {
			return true
		}
	}
	st.includes = append(st.includes, address)
	return false
}

func (st *State) leaving() {
	st.includes = st.includes[:len(st.includes)-1]
}

// annotate records a content-driven failure as a structured error attribute
// on the offending node. The walk is never aborted by annotation.
func annotate(n *dom.Node, err error) {
	re := errors.Wrap("expr", err)
	n.SetAttr(re.Attribute(), re.Message)
}
