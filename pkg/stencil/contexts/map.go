package contexts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stencila/stencila-sub009/pkg/stencil/errors"
)

// MapContext is the reference, purely declarative context. It resolves
// expressions against a stack of in-memory frames, typically populated from a
// YAML data file. It accepts no code execution at all; exec directives
// rendered against it produce not-supported errors.
//
// The expression surface is deliberately tiny: dotted and indexed name paths
// (a.b, items[0].name), quoted string literals, numeric and boolean literals,
// and equality comparison (==, !=) between two such terms.
type MapContext struct {
	frames   []map[string]any
	loops    []*mapLoop
	subjects []string

	printer    *message.Printer // nil means plain strconv formatting
	dateLayout string
	locale     monday.Locale
}

type mapLoop struct {
	name  string
	items []any
	pos   int
}

// NewMapContext creates a context whose outermost frame holds the given data.
func NewMapContext(data map[string]any) *MapContext {
	if data == nil {
		data = map[string]any{}
	}
	return &MapContext{
		frames:     []map[string]any{data},
		dateLayout: "2 January 2006",
		locale:     monday.LocaleEnUS,
	}
}

// SetLanguage switches number formatting to the given language. The zero tag
// language.Und restores plain formatting.
func (c *MapContext) SetLanguage(tag language.Tag) {
	if tag == language.Und {
		c.printer = nil
		return
	}
	c.printer = message.NewPrinter(tag)
}

// SetDateFormat sets the layout and locale used to render time values.
func (c *MapContext) SetDateFormat(layout string, locale monday.Locale) {
	c.dateLayout = layout
	c.locale = locale
}

// Accepts reports false for every language: the map context is declarative.
func (c *MapContext) Accepts(lang string) bool { return false }

// Execute always fails with a not-supported error.
func (c *MapContext) Execute(code string) error {
	return errors.New("not-supported", map[string]any{"Operation": "execute"})
}

// Interact always fails with a not-supported error.
func (c *MapContext) Interact(code string) (string, error) {
	return "", errors.New("not-supported", map[string]any{"Operation": "interact"})
}

// Assign binds name in the innermost frame.
func (c *MapContext) Assign(name, expr string) error {
	v, err := c.eval(expr)
	if err != nil {
		return err
	}
	c.frames[len(c.frames)-1][name] = v
	return nil
}

// Text evaluates expr and returns its string representation.
func (c *MapContext) Text(expr string) (string, error) {
	v, err := c.eval(expr)
	if err != nil {
		return "", err
	}
	return c.format(v), nil
}

// Test evaluates expr as a boolean: booleans directly, everything else
// through the shared truthiness rule on its text form.
func (c *MapContext) Test(expr string) (bool, error) {
	v, err := c.eval(expr)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return Truthy(c.format(v)), nil
}

// Subject pushes the evaluated text of expr as the active switch subject.
func (c *MapContext) Subject(expr string) error {
	text, err := c.Text(expr)
	if err != nil {
		return err
	}
	c.subjects = append(c.subjects, text)
	return nil
}

// Match compares expr's text to the active subject.
func (c *MapContext) Match(expr string) (bool, error) {
	if len(c.subjects) == 0 {
		return false, errors.NewSimple(errors.ClassSubject, "no-subject", "no active switch subject")
	}
	text, err := c.Text(expr)
	if err != nil {
		return false, err
	}
	return text == c.subjects[len(c.subjects)-1], nil
}

// Unsubject pops the active switch subject.
func (c *MapContext) Unsubject() error {
	if len(c.subjects) == 0 {
		return errors.NewSimple(errors.ClassSubject, "no-subject", "unsubject without an active subject")
	}
	c.subjects = c.subjects[:len(c.subjects)-1]
	return nil
}

// Begin evaluates expr to a sequence and opens a loop frame with item bound
// to the first element. The loop frame stays open until End, even when the
// sequence is empty.
func (c *MapContext) Begin(item, expr string) (bool, error) {
	v, err := c.eval(expr)
	if err != nil {
		return false, err
	}
	items, err := toSequence(expr, v)
	if err != nil {
		return false, err
	}
	loop := &mapLoop{name: item, items: items}
	c.loops = append(c.loops, loop)
	frame := map[string]any{}
	if len(items) > 0 {
		frame[item] = items[0]
	}
	c.frames = append(c.frames, frame)
	return len(items) > 0, nil
}

// Next advances the innermost loop, rebinding its item.
func (c *MapContext) Next() (bool, error) {
	if len(c.loops) == 0 {
		return false, errors.NewSimple(errors.ClassExpression, "expr", "next without an active loop")
	}
	loop := c.loops[len(c.loops)-1]
	loop.pos++
	if loop.pos >= len(loop.items) {
		return false, nil
	}
	c.frames[len(c.frames)-1][loop.name] = loop.items[loop.pos]
	return true, nil
}

// End discards the innermost loop and its frame.
func (c *MapContext) End() error {
	if len(c.loops) == 0 {
		return errors.NewSimple(errors.ClassExpression, "expr", "end without an active loop")
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

// Enter pushes a lexical frame. With a non-empty expr the frame is scoped to
// the named sub-structure, which must evaluate to a mapping. The frame holds
// a shallow copy of the mapping, so assignments inside the scope die with it
// instead of writing through into the document data.
func (c *MapContext) Enter(expr string) error {
	if strings.TrimSpace(expr) == "" {
		c.frames = append(c.frames, map[string]any{})
		return nil
	}
	v, err := c.eval(expr)
	if err != nil {
		return err
	}
	m, ok := toMap(v)
	if !ok {
		return errors.New("expr", map[string]any{"Expression": expr, "Reason": "value is not a scope"})
	}
	frame := make(map[string]any, len(m))
	for k, val := range m {
		frame[k] = val
	}
	c.frames = append(c.frames, frame)
	return nil
}

// Exit pops the innermost lexical frame. The outermost data frame cannot be
// popped.
func (c *MapContext) Exit() error {
	if len(c.frames) <= 1 {
		return errors.NewSimple(errors.ClassExpression, "expr", "exit without an enclosing frame")
	}
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

// Depth returns the number of frames currently on the stack. Used by tests
// to check that scoped acquisition stays balanced.
func (c *MapContext) Depth() int { return len(c.frames) }

// eval evaluates one expression term or an equality comparison of two terms.
func (c *MapContext) eval(expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expr", map[string]any{"Expression": expr, "Reason": "empty expression"})
	}
	if left, right, found := cutOperator(expr, "=="); found {
		eq, err := c.equal(left, right)
		return eq, err
	}
	if left, right, found := cutOperator(expr, "!="); found {
		eq, err := c.equal(left, right)
		return !eq, err
	}
	return c.evalTerm(expr)
}

func (c *MapContext) equal(left, right string) (bool, error) {
	lv, err := c.evalTerm(strings.TrimSpace(left))
	if err != nil {
		return false, err
	}
	rv, err := c.evalTerm(strings.TrimSpace(right))
	if err != nil {
		return false, err
	}
	return c.format(lv) == c.format(rv), nil
}

// cutOperator splits on an operator that appears outside quotes.
func cutOperator(expr, op string) (left, right string, found bool) {
	inQuote := byte(0)
	for i := 0; i+len(op) <= len(expr); i++ {
		ch := expr[i]
		if inQuote != 0 {
			if ch == inQuote {
				inQuote = 0
			}
			continue
		}
		if ch == '\'' || ch == '"' {
			inQuote = ch
			continue
		}
		if expr[i:i+len(op)] == op {
			return expr[:i], expr[i+len(op):], true
		}
	}
	return "", "", false
}

// evalTerm evaluates a literal or a name path.
func (c *MapContext) evalTerm(term string) (any, error) {
	if term == "" {
		return nil, errors.New("expr", map[string]any{"Expression": term, "Reason": "empty expression"})
	}
	if len(term) >= 2 {
		if (term[0] == '\'' && term[len(term)-1] == '\'') || (term[0] == '"' && term[len(term)-1] == '"') {
			return term[1 : len(term)-1], nil
		}
	}
	switch term {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	if i, err := strconv.ParseInt(term, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(term, 64); err == nil {
		return f, nil
	}
	return c.lookup(term)
}

// lookup resolves a dotted, optionally indexed name path against the frame
// stack, innermost first.
func (c *MapContext) lookup(path string) (any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, errors.New("expr", map[string]any{"Expression": path, "Reason": err.Error()})
	}
	head := segs[0].name
	for i := len(c.frames) - 1; i >= 0; i-- {
		v, ok := c.frames[i][head]
		if !ok {
			continue
		}
		v, err := descend(v, segs, path)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, errors.New("expr", map[string]any{"Expression": path, "Reason": "'" + head + "' is not defined"})
}

type pathSeg struct {
	name    string
	indexes []int
}

func splitPath(path string) ([]pathSeg, error) {
	var segs []pathSeg
	for _, raw := range strings.Split(path, ".") {
		name := raw
		var indexes []int
		for {
			open := strings.IndexByte(name, '[')
			if open < 0 {
				break
			}
			closing := strings.IndexByte(name, ']')
			if closing < open {
				return nil, fmt.Errorf("malformed index in '%s'", path)
			}
			idx, err := strconv.Atoi(name[open+1 : closing])
			if err != nil {
				return nil, fmt.Errorf("malformed index in '%s'", path)
			}
			indexes = append(indexes, idx)
			name = name[:open] + name[closing+1:]
		}
		if name == "" && len(segs) == 0 {
			return nil, fmt.Errorf("malformed name '%s'", path)
		}
		segs = append(segs, pathSeg{name: name, indexes: indexes})
	}
	if len(segs) == 0 || segs[0].name == "" {
		return nil, fmt.Errorf("malformed name '%s'", path)
	}
	return segs, nil
}

func descend(v any, segs []pathSeg, path string) (any, error) {
	for i, seg := range segs {
		if i > 0 {
			m, ok := toMap(v)
			if !ok {
				return nil, errors.New("expr", map[string]any{"Expression": path, "Reason": "'" + seg.name + "' applied to a non-mapping value"})
			}
			child, ok := m[seg.name]
			if !ok {
				return nil, errors.New("expr", map[string]any{"Expression": path, "Reason": "'" + seg.name + "' is not defined"})
			}
			v = child
		}
		for _, idx := range seg.indexes {
			list, ok := v.([]any)
			if !ok {
				return nil, errors.New("expr", map[string]any{"Expression": path, "Reason": "index applied to a non-sequence value"})
			}
			if idx < 0 || idx >= len(list) {
				return nil, errors.New("expr", map[string]any{"Expression": path, "Reason": fmt.Sprintf("index %d out of range", idx)})
			}
			v = list[idx]
		}
	}
	return v, nil
}

// toMap normalizes the mapping shapes the YAML decoder produces.
func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	}
	return nil, false
}

// toSequence converts a loop iterable into an ordered slice. Mappings iterate
// in sorted key order, each item a {key, value} pair; strings iterate by rune.
func toSequence(expr string, v any) ([]any, error) {
	switch seq := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return seq, nil
	case string:
		items := make([]any, 0, len(seq))
		for _, r := range seq {
			items = append(items, string(r))
		}
		return items, nil
	}
	if m, ok := toMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, 0, len(keys))
		for _, k := range keys {
			items = append(items, map[string]any{"key": k, "value": m[k]})
		}
		return items, nil
	}
	return nil, errors.New("expr", map[string]any{"Expression": expr, "Reason": fmt.Sprintf("cannot iterate over %T", v)})
}

// format renders a bound value as text.
func (c *MapContext) format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return c.formatInt(int64(val))
	case int64:
		return c.formatInt(val)
	case uint64:
		if c.printer != nil {
			return c.printer.Sprint(val)
		}
		return strconv.FormatUint(val, 10)
	case float64:
		if c.printer != nil {
			return c.printer.Sprintf("%v", val)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return monday.Format(val, c.dateLayout, c.locale)
	}
	// Composite values render as compact JSON.
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func (c *MapContext) formatInt(v int64) string {
	if c.printer != nil {
		return c.printer.Sprint(v)
	}
	return strconv.FormatInt(v, 10)
}
