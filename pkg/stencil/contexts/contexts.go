// Package contexts defines the capability protocol every stencil execution
// backend implements, plus the reference in-memory MapContext and a SQL
// backend. The renderer talks to a context exclusively through the Context
// interface; expressions are opaque strings resolved by the context against
// its own state.
package contexts

import "strings"

// Context is the capability surface the renderer calls while walking a
// document. Implementations confine side effects to their own state. Every
// operation returns a *errors.RenderError (as error) when the expression is
// malformed or the capability is unsupported; the renderer records such
// failures on the offending node and carries on.
type Context interface {
	// Accepts reports whether this context executes code in the given
	// language backend ("sql", "r", "py", ...).
	Accepts(lang string) bool

	// Execute runs a block of code as a side-effecting statement sequence.
	Execute(code string) error

	// Interact runs one line of code and returns its textual result. Used by
	// interactive shells; contexts without an interactive mode return a
	// not-supported error.
	Interact(code string) (string, error)

	// Assign binds name to the evaluated result of expr in the current frame.
	Assign(name, expr string) error

	// Text evaluates expr and returns its string representation.
	Text(expr string) (string, error)

	// Test evaluates expr and returns it as a boolean. Non-boolean results
	// are judged by Truthy on their text form, which is stricter than plain
	// non-emptiness: the spellings "false" and "0" read as false.
	Test(expr string) (bool, error)

	// Subject evaluates expr and pushes its text as the active switch subject.
	Subject(expr string) error

	// Match compares expr's evaluated text to the active subject. It fails
	// when no subject is active.
	Match(expr string) (bool, error)

	// Unsubject pops the active switch subject.
	Unsubject() error

	// Begin evaluates expr to an ordered sequence, binds its first element to
	// item in a fresh loop frame, and reports whether the sequence is
	// non-empty. A successful Begin must be paired with End regardless of the
	// report, so cleanup stays symmetric on every path.
	Begin(item, expr string) (bool, error)

	// Next advances the active loop cursor, rebinding the item. It reports
	// false when the sequence is exhausted.
	Next() (bool, error)

	// End discards the innermost loop frame.
	End() error

	// Enter pushes a lexical frame. A non-empty expr scopes the frame to the
	// named sub-structure, so names resolve against it first.
	Enter(expr string) error

	// Exit pops the innermost lexical frame.
	Exit() error
}

// Truthy is the shared text-to-boolean rule: a non-empty string is true,
// except the spellings "false" and "0".
func Truthy(text string) bool {
	switch strings.TrimSpace(text) {
	case "", "false", "0":
		return false
	}
	return true
}
