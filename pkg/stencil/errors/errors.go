// Package errors provides structured error types for the stencil renderer.
//
// RenderError is the unified error value for every content-driven failure
// raised while rendering a directive: expression evaluation, unsupported
// context capabilities, malformed directive syntax, missing include
// parameters, and misplaced case/default directives. The renderer converts
// these into node-local error attributes; they never abort a render.
package errors

import (
	"bytes"
	"fmt"
	"text/template"
)

// Class categorizes render errors for filtering and attribute naming.
type Class string

const (
	ClassExpression Class = "expression" // Context could not evaluate an expression
	ClassSupport    Class = "support"    // Context does not implement a capability
	ClassSyntax     Class = "syntax"     // Directive value does not parse
	ClassParameter  Class = "parameter"  // Include parameter problems
	ClassSubject    Class = "subject"    // Case/default outside an active switch
	ClassInclude    Class = "include"    // Include resolution problems
)

// RenderError represents any content-driven failure during rendering.
//
// Code doubles as the error attribute suffix: a RenderError with code
// "par-required" is written to the offending node as data-error-par-required.
type RenderError struct {
	Class   Class          // Error category
	Code    string         // Attribute suffix (e.g. "syntax", "par-required")
	Message string         // Human-readable message
	Data    map[string]any // Template variables
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return e.Message
}

// Attribute returns the error attribute name for this error.
func (e *RenderError) Attribute() string {
	return "data-error-" + e.Code
}

// errorDef defines an error in the catalog.
type errorDef struct {
	Class    Class
	Template string // Message template with {{.placeholders}}
}

var catalog = map[string]errorDef{
	"expr": {
		Class:    ClassExpression,
		Template: "could not evaluate '{{.Expression}}': {{.Reason}}",
	},
	"not-supported": {
		Class:    ClassSupport,
		Template: "context does not support {{.Operation}}",
	},
	"syntax": {
		Class:    ClassSyntax,
		Template: "invalid {{.Directive}} directive: {{.Reason}}",
	},
	"par-required": {
		Class:    ClassParameter,
		Template: "required parameter '{{.Name}}' was not supplied",
	},
	"no-subject": {
		Class:    ClassSubject,
		Template: "{{.Directive}} used without an enclosing switch",
	},
	"include-not-found": {
		Class:    ClassInclude,
		Template: "could not resolve include '{{.Address}}': {{.Reason}}",
	},
	"include-select": {
		Class:    ClassInclude,
		Template: "selector '{{.Selector}}' matched nothing in '{{.Address}}'",
	},
	"include-cycle": {
		Class:    ClassInclude,
		Template: "include cycle: {{.Chain}}",
	},
}

// New creates a RenderError from a catalog code and template data.
func New(code string, data map[string]any) *RenderError {
	def, ok := catalog[code]
	if !ok {
		msg := code
		if m, ok := data["message"].(string); ok {
			msg = m
		}
		return &RenderError{Class: ClassExpression, Code: code, Message: msg, Data: data}
	}
	return &RenderError{
		Class:   def.Class,
		Code:    code,
		Message: renderTemplate(def.Template, data),
		Data:    data,
	}
}

// NewSimple creates a RenderError without using the catalog.
func NewSimple(class Class, code, message string) *RenderError {
	return &RenderError{Class: class, Code: code, Message: message}
}

// Wrap converts an arbitrary error into a RenderError. RenderErrors pass
// through unchanged; anything else becomes an expression-class error with the
// given code.
func Wrap(code string, err error) *RenderError {
	if re, ok := err.(*RenderError); ok {
		return re
	}
	return &RenderError{Class: ClassExpression, Code: code, Message: err.Error()}
}

func renderTemplate(tmplStr string, data map[string]any) string {
	tmpl, err := template.New("error").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("%s (template data missing)", tmplStr)
	}
	return buf.String()
}
