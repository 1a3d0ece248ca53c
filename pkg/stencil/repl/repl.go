// Package repl provides an interactive shell for trying context protocol
// operations: expressions evaluate immediately against the attached context,
// which makes it a quick way to probe a data file or database before
// rendering a stencil against it.
package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/stencila/stencila-sub009/pkg/stencil/contexts"
)

const prompt = ">> "

const logo = `
█▀ ▀█▀ █▀▀ █▄░█ █▀▀ █ █░░
▄█ ░█░ ██▄ █░▀█ █▄▄ █ █▄▄ `

// Protocol verbs and common literals for tab completion.
var completionWords = []string{
	"text", "test", "assign", "execute", "interact",
	"subject", "match", "unsubject",
	"begin", "next", "end", "enter", "exit",
	"true", "false", "null", "help", "quit",
}

// Start runs the shell against ctx until EOF or quit.
func Start(out io.Writer, ctx contexts.Context, version string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(line string) []string {
		return filterCompletions(line)
	})

	historyFile := filepath.Join(os.TempDir(), ".stencil_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintln(out, logo)
	fmt.Fprintf(out, "stencil %s — type an expression, a protocol verb, or 'help'\n", version)

	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if input == "quit" || input == "exit!" {
			break
		}
		if input == "help" {
			printHelp(out)
			continue
		}
		evalLine(out, ctx, input)
	}

	if f, err := os.Create(historyFile); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

func evalLine(out io.Writer, ctx contexts.Context, input string) {
	verb, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch verb {
	case "text":
		var text string
		if text, err = ctx.Text(rest); err == nil {
			fmt.Fprintln(out, text)
		}
	case "test":
		var ok bool
		if ok, err = ctx.Test(rest); err == nil {
			fmt.Fprintln(out, ok)
		}
	case "assign":
		name, expr, found := strings.Cut(rest, " ")
		if !found {
			fmt.Fprintln(out, "usage: assign <name> <expression>")
			return
		}
		if err = ctx.Assign(name, strings.TrimSpace(expr)); err == nil {
			fmt.Fprintln(out, "ok")
		}
	case "execute":
		if err = ctx.Execute(rest); err == nil {
			fmt.Fprintln(out, "ok")
		}
	case "interact":
		var text string
		if text, err = ctx.Interact(rest); err == nil {
			fmt.Fprintln(out, text)
		}
	case "subject":
		if err = ctx.Subject(rest); err == nil {
			fmt.Fprintln(out, "ok")
		}
	case "match":
		var ok bool
		if ok, err = ctx.Match(rest); err == nil {
			fmt.Fprintln(out, ok)
		}
	case "unsubject":
		if err = ctx.Unsubject(); err == nil {
			fmt.Fprintln(out, "ok")
		}
	case "begin":
		name, expr, found := strings.Cut(rest, " ")
		if !found {
			fmt.Fprintln(out, "usage: begin <item> <expression>")
			return
		}
		var has bool
		if has, err = ctx.Begin(name, strings.TrimSpace(expr)); err == nil {
			fmt.Fprintln(out, has)
		}
	case "next":
		var more bool
		if more, err = ctx.Next(); err == nil {
			fmt.Fprintln(out, more)
		}
	case "end":
		if err = ctx.End(); err == nil {
			fmt.Fprintln(out, "ok")
		}
	case "enter":
		if err = ctx.Enter(rest); err == nil {
			fmt.Fprintln(out, "ok")
		}
	case "exit":
		if err = ctx.Exit(); err == nil {
			fmt.Fprintln(out, "ok")
		}
	default:
		// A bare expression renders as text.
		var text string
		if text, err = ctx.Text(input); err == nil {
			fmt.Fprintln(out, text)
		}
	}
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `Protocol operations:
  <expression>               evaluate and print as text
  text <expr>                evaluate and print as text
  test <expr>                evaluate as a boolean
  assign <name> <expr>       bind a name in the current frame
  execute <code>             run code (language contexts only)
  interact <code>            run one line and print the result
  subject <expr> / match <expr> / unsubject
  begin <item> <expr> / next / end
  enter [expr] / exit        push/pop a lexical frame
  quit                       leave the shell`)
}

func filterCompletions(input string) []string {
	if input == "" {
		return nil
	}
	lastSpace := strings.LastIndex(input, " ")
	prefix := input[lastSpace+1:]
	head := input[:lastSpace+1]
	if prefix == "" {
		return nil
	}
	var matches []string
	for _, w := range completionWords {
		if strings.HasPrefix(w, prefix) {
			matches = append(matches, head+w)
		}
	}
	return matches
}
