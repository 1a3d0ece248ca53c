// Package directive parses the stencil attribute vocabulary on tree nodes
// into tagged Directive values. Parsing happens once per node; the renderer
// dispatches on the resulting variant instead of re-reading attribute strings
// per directive.
package directive

import (
	"strings"

	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
	"github.com/stencila/stencila-sub009/pkg/stencil/errors"
)

// Attribute names for directives and flags.
const (
	AttrExec    = "data-exec"
	AttrIf      = "data-if"
	AttrElif    = "data-elif"
	AttrElse    = "data-else"
	AttrSwitch  = "data-switch"
	AttrCase    = "data-case"
	AttrDefault = "data-default"
	AttrFor     = "data-for"
	AttrEach    = "data-each"
	AttrWith    = "data-with"
	AttrInclude = "data-include"
	AttrSelect  = "data-select"
	AttrMacro   = "data-macro"
	AttrParam   = "data-par"
	AttrText    = "data-text"
	AttrWrite   = "data-write"
	AttrSet     = "data-set"

	AttrDelete  = "data-delete"
	AttrReplace = "data-replace"
	AttrChange  = "data-change"
	AttrBefore  = "data-before"
	AttrAfter   = "data-after"
	AttrPrepend = "data-prepend"
	AttrAppend  = "data-append"

	AttrLock     = "data-lock"
	AttrOff      = "data-off"
	AttrIndex    = "data-index"
	AttrExtra    = "data-extra"
	AttrIncluded = "data-included"

	ErrorPrefix = "data-error-"
)

// Kind identifies the directive variant.
type Kind int

const (
	None Kind = iota
	Exec
	If
	Elif
	Else
	Switch
	Case
	Default
	For
	Each
	With
	Include
	Macro
	Param
	Text
	Write
	Set
	Delete
	Replace
	Change
	Before
	After
	Prepend
	Append
)

var kindNames = map[Kind]string{
	None: "none", Exec: "exec", If: "if", Elif: "elif", Else: "else",
	Switch: "switch", Case: "case", Default: "default", For: "for",
	Each: "each", With: "with", Include: "include", Macro: "macro",
	Param: "par", Text: "text", Write: "write", Set: "set",
	Delete: "delete", Replace: "replace", Change: "change",
	Before: "before", After: "after", Prepend: "prepend", Append: "append",
}

func (k Kind) String() string { return kindNames[k] }

// Directive is a parsed directive. Which fields are populated depends on the
// Kind. A directive whose attribute value failed to parse carries the syntax
// error in Err; the dispatcher annotates it instead of firing the directive.
type Directive struct {
	Kind Kind

	Expr string // if, elif, switch, case, with, text, write, and the for iterable

	Item string // for: bound item name

	Name       string // macro, par, set
	Type       string // par: optional declared type
	Default    string // par: default value expression
	HasDefault bool
	Value      string // set: assigned value expression

	Address  string // include
	Selector string // include: data-select, or delete/replace/... selector value

	Langs   []string // exec: language backends
	Options []string // exec: remaining options

	Err *errors.RenderError
}

// Primary attribute names in dispatch precedence order (structural lock is
// handled before directive parsing by the renderer).
var primary = []struct {
	attr string
	kind Kind
}{
	{AttrExec, Exec},
	{AttrIf, If},
	{AttrElif, Elif},
	{AttrElse, Else},
	{AttrSwitch, Switch},
	{AttrCase, Case},
	{AttrDefault, Default},
	{AttrFor, For},
	{AttrEach, Each},
	{AttrWith, With},
	{AttrInclude, Include},
	{AttrMacro, Macro},
	{AttrParam, Param},
	{AttrText, Text},
	{AttrWrite, Write},
	{AttrSet, Set},
	{AttrDelete, Delete},
	{AttrReplace, Replace},
	{AttrChange, Change},
	{AttrBefore, Before},
	{AttrAfter, After},
	{AttrPrepend, Prepend},
	{AttrAppend, Append},
}

// Parse inspects the node's attributes and returns its primary directive, or
// nil when the node carries none. When several directive attributes are
// present the highest-precedence one wins.
func Parse(n *dom.Node) *Directive {
	if n.Type != dom.ElementNode {
		return nil
	}
	for _, p := range primary {
		value, ok := n.Attr(p.attr)
		if !ok {
			continue
		}
		return parseValue(p.kind, value, n)
	}
	return nil
}

func parseValue(kind Kind, value string, n *dom.Node) *Directive {
	d := &Directive{Kind: kind}
	value = strings.TrimSpace(value)
	switch kind {
	case If, Elif, Switch, Case, With, Text, Write:
		if value == "" {
			d.Err = errors.New("syntax", map[string]any{"Directive": kind.String(), "Reason": "missing expression"})
			return d
		}
		d.Expr = value
	case Else, Default, Each:
		// Flag-like directives carry no value.
	case For:
		item, expr, found := strings.Cut(value, " in ")
		if !found {
			d.Err = errors.New("syntax", map[string]any{"Directive": "for", "Reason": "expected 'item in expression', got '" + value + "'"})
			return d
		}
		d.Item = strings.TrimSpace(item)
		d.Expr = strings.TrimSpace(expr)
		if d.Item == "" || d.Expr == "" || strings.ContainsAny(d.Item, " \t") {
			d.Err = errors.New("syntax", map[string]any{"Directive": "for", "Reason": "expected 'item in expression', got '" + value + "'"})
			return d
		}
	case Include:
		if value == "" {
			d.Err = errors.New("syntax", map[string]any{"Directive": "include", "Reason": "missing address"})
			return d
		}
		d.Address = value
		d.Selector, _ = n.Attr(AttrSelect)
	case Macro:
		if value == "" {
			d.Err = errors.New("syntax", map[string]any{"Directive": "macro", "Reason": "missing name"})
			return d
		}
		d.Name = value
	case Param:
		parseParam(d, value)
	case Set:
		name, expr, found := strings.Cut(value, "=")
		if !found || strings.TrimSpace(name) == "" {
			d.Err = errors.New("syntax", map[string]any{"Directive": "set", "Reason": "expected 'name=value', got '" + value + "'"})
			return d
		}
		d.Name = strings.TrimSpace(name)
		d.Value = strings.TrimSpace(expr)
	case Exec:
		parseExec(d, value)
	case Delete, Replace, Change, Before, After, Prepend, Append:
		if value == "" {
			d.Err = errors.New("syntax", map[string]any{"Directive": kind.String(), "Reason": "missing selector"})
			return d
		}
		d.Selector = value
	}
	return d
}

// parseParam parses "name", "name:type", "name=default", "name:type=default".
func parseParam(d *Directive, value string) {
	head, def, hasDefault := strings.Cut(value, "=")
	name, typ, _ := strings.Cut(head, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		d.Err = errors.New("syntax", map[string]any{"Directive": "par", "Reason": "missing parameter name"})
		return
	}
	d.Name = name
	d.Type = strings.TrimSpace(typ)
	if hasDefault {
		d.Default = strings.TrimSpace(def)
		d.HasDefault = true
	}
}

// parseExec parses "lang[,lang...] [option...]".
func parseExec(d *Directive, value string) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		d.Err = errors.New("syntax", map[string]any{"Directive": "exec", "Reason": "missing language"})
		return
	}
	for _, lang := range strings.Split(fields[0], ",") {
		lang = strings.TrimSpace(lang)
		if lang != "" {
			d.Langs = append(d.Langs, lang)
		}
	}
	if len(d.Langs) == 0 {
		d.Err = errors.New("syntax", map[string]any{"Directive": "exec", "Reason": "missing language"})
		return
	}
	d.Options = fields[1:]
}

// IsFlag reports whether the attribute is one of the renderer's flag
// attributes rather than a directive.
func IsFlag(attr string) bool {
	switch attr {
	case AttrLock, AttrOff, AttrIndex, AttrExtra, AttrIncluded:
		return true
	}
	return strings.HasPrefix(attr, ErrorPrefix)
}

// ClearErrors removes any error attributes from the node.
func ClearErrors(n *dom.Node) {
	var stale []string
	for _, a := range n.Attrs {
		if strings.HasPrefix(a.Name, ErrorPrefix) {
			stale = append(stale, a.Name)
		}
	}
	for _, name := range stale {
		n.UnsetAttr(name)
	}
}
