package render

import (
	"testing"

	"github.com/stencila/stencila-sub009/pkg/stencil/contexts"
	"github.com/stencila/stencila-sub009/pkg/stencil/directive"
	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
	"github.com/stencila/stencila-sub009/pkg/stencil/store"
)

func testStore() store.Store {
	return store.NewMemStore(map[string]string{
		"snippets/header": `<h1 id="hd" data-text="title"></h1>`,
		"snippets/card": `<div class="card">` +
			`<span data-par="who='World'"></span>` +
			`<p class="msg" data-text="who"></p></div>`,
		"snippets/strict": `<div><span data-par="who"></span>` +
			`<p class="msg" data-text="who"></p></div>`,
		"page": `<div id="body"><p id="target">hi</p><p id="other">no</p></div>`,
		"macros": `<div data-macro="greeting" data-off>` +
			`<span data-par="who='World'"></span>` +
			`<p class="msg" data-text="who"></p></div>`,
		"cycle/a": `<div data-include="cycle/b"></div>`,
		"cycle/b": `<div data-include="cycle/a"></div>`,
	})
}

func renderWithStore(t *testing.T, src string, data map[string]any) *dom.Node {
	t.Helper()
	doc, _ := renderDoc(t, src, data, WithStore(testStore()))
	return doc
}

func includedOf(t *testing.T, doc *dom.Node, selector string) *dom.Node {
	t.Helper()
	n := mustSelect(t, doc, selector)
	for _, c := range n.ElementChildren() {
		if c.HasAttr(directive.AttrIncluded) {
			return c
		}
	}
	t.Fatalf("no managed include child under %q in %s", selector, dom.SerializeString(doc))
	return nil
}

func TestIncludeWholeDocument(t *testing.T) {
	doc := renderWithStore(t, `<div id="i" data-include="snippets/header"></div>`,
		map[string]any{"title": "Hello"})

	incl := includedOf(t, doc, "#i")
	h1 := mustSelect(t, incl, "#hd")
	if h1.Text() != "Hello" {
		t.Errorf("expected the included content rendered, got %q", h1.Text())
	}
}

func TestIncludeSelector(t *testing.T) {
	doc := renderWithStore(t, `<div id="i" data-include="page" data-select="#target"></div>`, nil)
	incl := includedOf(t, doc, "#i")
	if len(incl.ElementChildren()) != 1 {
		t.Fatalf("expected one selected node, got %s", dom.SerializeString(incl))
	}
	if incl.ElementChildren()[0].Text() != "hi" {
		t.Error("expected only #target spliced")
	}
}

func TestIncludeFragmentAddress(t *testing.T) {
	doc := renderWithStore(t, `<div id="i" data-include="page#target"></div>`, nil)
	incl := includedOf(t, doc, "#i")
	if len(incl.ElementChildren()) != 1 || incl.ElementChildren()[0].Text() != "hi" {
		t.Errorf("expected the fragment to select #target, got %s", dom.SerializeString(incl))
	}
}

func TestIncludeNotFound(t *testing.T) {
	doc := renderWithStore(t, `<div id="i" data-include="nope"></div>`, nil)
	if !mustSelect(t, doc, "#i").HasAttr("data-error-include-not-found") {
		t.Error("expected an include-not-found error")
	}

	// Without a store every include fails the same way.
	bare, _ := renderDoc(t, `<div id="i" data-include="page"></div>`, nil)
	if !mustSelect(t, bare, "#i").HasAttr("data-error-include-not-found") {
		t.Error("expected an include-not-found error without a store")
	}
}

func TestIncludeSelectorNoMatch(t *testing.T) {
	doc := renderWithStore(t, `<div id="i" data-include="page" data-select="#missing"></div>`, nil)
	if !mustSelect(t, doc, "#i").HasAttr("data-error-include-select") {
		t.Error("expected an include-select error")
	}
}

func TestIncludeParamDefault(t *testing.T) {
	doc := renderWithStore(t, `<div id="i" data-include="snippets/card"></div>`, nil)
	msg := mustSelect(t, includedOf(t, doc, "#i"), ".msg")
	if msg.Text() != "World" {
		t.Errorf("expected the declared default, got %q", msg.Text())
	}
}

func TestIncludeParamSet(t *testing.T) {
	doc := renderWithStore(t,
		`<div id="i" data-include="snippets/card"><span data-set="who='Asla'"></span></div>`,
		nil)
	msg := mustSelect(t, includedOf(t, doc, "#i"), ".msg")
	if msg.Text() != "Asla" {
		t.Errorf("expected the set value to win over the default, got %q", msg.Text())
	}
}

func TestIncludeParamRequired(t *testing.T) {
	doc := renderWithStore(t, `<div id="i" data-include="snippets/strict"></div>`, nil)
	n := mustSelect(t, doc, "#i")
	if !n.HasAttr("data-error-par-required") {
		t.Error("expected a par-required error")
	}
	// The fragment is spliced but none of its expressions are evaluated.
	msg := mustSelect(t, includedOf(t, doc, "#i"), ".msg")
	if msg.Text() != "" {
		t.Errorf("expected the content unrendered, got %q", msg.Text())
	}
}

func TestIncludeParamScopedToInclude(t *testing.T) {
	doc := renderWithStore(t,
		`<div id="i" data-include="snippets/card"></div><p id="out" data-text="who">x</p>`,
		nil)
	// The binding must not leak past the include's frame.
	if !mustSelect(t, doc, "#out").HasAttr("data-error-expr") {
		t.Error("expected the parameter binding to stay inside the include")
	}
}

func TestIncludeMacro(t *testing.T) {
	doc := renderWithStore(t,
		`<div id="i" data-include="macros" data-select="[data-macro=greeting]"></div>`,
		nil)
	incl := includedOf(t, doc, "#i")
	body := incl.ElementChildren()[0]
	if body.HasAttr(directive.AttrMacro) || body.HasAttr(directive.AttrOff) {
		t.Error("expected the macro flags stripped from the spliced copy")
	}
	if msg := mustSelect(t, incl, ".msg"); msg.Text() != "World" {
		t.Errorf("expected the macro body rendered, got %q", msg.Text())
	}
}

func TestIncludeModifiers(t *testing.T) {
	const src = `
<div id="i" data-include="page">
  <div data-delete="#target"></div>
  <div data-change="#other"><b>X</b></div>
  <div data-append="#body"><i>tail</i></div>
</div>`
	doc := renderWithStore(t, src, nil)
	incl := includedOf(t, doc, "#i")

	if n, _ := incl.Select("#target"); n != nil {
		t.Error("expected #target deleted")
	}
	other := mustSelect(t, incl, "#other")
	if len(other.ElementChildren()) != 1 || other.ElementChildren()[0].Tag != "b" {
		t.Errorf("expected #other content changed, got %s", dom.SerializeString(other))
	}
	body := mustSelect(t, incl, "#body")
	kids := body.ElementChildren()
	if len(kids) == 0 || kids[len(kids)-1].Tag != "i" {
		t.Errorf("expected <i> appended to #body, got %s", dom.SerializeString(body))
	}
}

func TestIncludeModifierNoMatch(t *testing.T) {
	const src = `
<div id="i" data-include="page">
  <div id="m" data-delete="#missing"></div>
</div>`
	doc := renderWithStore(t, src, nil)
	if !mustSelect(t, doc, "#m").HasAttr("data-error-include-select") {
		t.Error("expected an include-select error on the modifier")
	}
}

func TestIncludeCycle(t *testing.T) {
	doc := renderWithStore(t, `<div id="i" data-include="cycle/a"></div>`, nil)
	matches, err := doc.SelectAll("[data-error-include-cycle]")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one cycle error, got %d in %s", len(matches), dom.SerializeString(doc))
	}
}

func TestIncludeRerenderIsIdempotent(t *testing.T) {
	doc, err := dom.ParseString(`<div id="i" data-include="snippets/header"></div>`)
	if err != nil {
		t.Fatal(err)
	}
	data := map[string]any{"title": "Hello"}
	s := testStore()
	if err := Render(doc, contexts.NewMapContext(data), WithStore(s)); err != nil {
		t.Fatal(err)
	}
	first := dom.SerializeString(doc)
	if err := Render(doc, contexts.NewMapContext(data), WithStore(s)); err != nil {
		t.Fatal(err)
	}
	if second := dom.SerializeString(doc); second != first {
		t.Errorf("re-render changed the tree:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestIncludeLockedContentSurvives(t *testing.T) {
	doc, err := dom.ParseString(`<div id="i" data-include="snippets/header"></div>`)
	if err != nil {
		t.Fatal(err)
	}
	s := testStore()
	if err := Render(doc, contexts.NewMapContext(map[string]any{"title": "Hello"}), WithStore(s)); err != nil {
		t.Fatal(err)
	}

	h1 := mustSelect(t, doc, "#hd")
	h1.SetText("edited")
	h1.SetAttr(directive.AttrLock, "")

	if err := Render(doc, contexts.NewMapContext(map[string]any{"title": "Changed"}), WithStore(s)); err != nil {
		t.Fatal(err)
	}
	incl := includedOf(t, doc, "#i")
	var locked, fresh int
	for _, c := range incl.ElementChildren() {
		if c.HasAttr(directive.AttrLock) {
			locked++
			if c.Text() != "edited" {
				t.Errorf("expected the locked copy preserved, got %q", c.Text())
			}
		} else {
			fresh++
			if c.Text() != "Changed" {
				t.Errorf("expected the fresh copy rendered, got %q", c.Text())
			}
		}
	}
	if locked != 1 || fresh != 1 {
		t.Errorf("expected one locked and one fresh copy, got %d/%d", locked, fresh)
	}
}

func TestIncludeScopeBalance(t *testing.T) {
	doc, err := dom.ParseString(`<div data-include="snippets/card"></div>`)
	if err != nil {
		t.Fatal(err)
	}
	ctx := contexts.NewMapContext(nil)
	if err := Render(doc, ctx, WithStore(testStore())); err != nil {
		t.Fatal(err)
	}
	if ctx.Depth() != 1 {
		t.Errorf("frame stack unbalanced after include: depth %d", ctx.Depth())
	}
}
