package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/araddon/dateparse"
	"github.com/fsnotify/fsnotify"
	"github.com/goodsign/monday"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/stencila/stencila-sub009/config"
	"github.com/stencila/stencila-sub009/pkg/stencil/contexts"
	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
	"github.com/stencila/stencila-sub009/pkg/stencil/render"
	"github.com/stencila/stencila-sub009/pkg/stencil/repl"
	"github.com/stencila/stencila-sub009/pkg/stencil/store"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// varFlags collects repeated --var name=value bindings.
type varFlags map[string]any

func (v varFlags) String() string { return "" }

func (v varFlags) Set(s string) error {
	name, value, found := strings.Cut(s, "=")
	if !found || strings.TrimSpace(name) == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	v[strings.TrimSpace(name)] = coerce(value)
	return nil
}

// coerce turns a command-line value into the richest type it parses as:
// bool, integer, float, date, then string.
func coerce(s string) any {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if t, err := dateparse.ParseAny(s); err == nil && strings.ContainsAny(s, "-/:") {
		return t
	}
	return s
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("stencil", flag.ContinueOnError)
	flags.SetOutput(stderr)

	vars := varFlags{}
	var (
		configPath  = flags.String("config", "", "Path to config file")
		dataPath    = flags.String("data", "", "YAML data file for the map context")
		storeRoot   = flags.String("store", "", "Root directory for include resolution")
		dbDSN       = flags.String("db", "", "SQL context DSN (sqlite:path, mysql://dsn, postgres://dsn)")
		outPath     = flags.String("out", "", "Output path (default: stdout)")
		langTag     = flags.String("language", "", "BCP 47 language tag for number formatting")
		showVersion = flags.Bool("version", false, "Show version")
		showHelp    = flags.Bool("help", false, "Show help")
	)
	flags.Var(vars, "var", "Bind a context variable (name=value), repeatable")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "stencil version %s\n", Version)
		return nil
	}
	if *showHelp || flags.NArg() == 0 {
		printHelp(stdout, flags)
		return nil
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *dataPath != "" {
		cfg.Data = *dataPath
	}
	if *storeRoot != "" {
		cfg.Store = *storeRoot
	}
	if *dbDSN != "" {
		cfg.DB = *dbDSN
	}
	if *outPath != "" {
		cfg.Output = *outPath
	}
	if *langTag != "" {
		cfg.Language = *langTag
	}

	command := flags.Arg(0)
	switch command {
	case "render":
		if flags.NArg() < 2 {
			return fmt.Errorf("usage: stencil render <document>")
		}
		return renderOnce(cfg, vars, flags.Arg(1), stdout, stderr)
	case "watch":
		if flags.NArg() < 2 {
			return fmt.Errorf("usage: stencil watch <document>")
		}
		return watch(ctx, cfg, vars, flags.Arg(1), stdout, stderr)
	case "repl":
		ectx, closeCtx, err := buildContext(cfg, vars)
		if err != nil {
			return err
		}
		defer closeCtx()
		repl.Start(stdout, ectx, Version)
		return nil
	default:
		return fmt.Errorf("unknown command %q (expected render, watch, or repl)", command)
	}
}

func printHelp(out io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(out, "stencil - A directive-driven document renderer")
	fmt.Fprintln(out, "\nUsage:")
	fmt.Fprintln(out, "  stencil [flags] render <document>")
	fmt.Fprintln(out, "  stencil [flags] watch <document>")
	fmt.Fprintln(out, "  stencil [flags] repl")
	fmt.Fprintln(out, "\nFlags:")
	fmt.Fprintln(out, "  --config    Path to config file")
	fmt.Fprintln(out, "  --data      YAML data file for the map context")
	fmt.Fprintln(out, "  --var       Bind a context variable (name=value), repeatable")
	fmt.Fprintln(out, "  --store     Root directory for include resolution")
	fmt.Fprintln(out, "  --db        SQL context DSN")
	fmt.Fprintln(out, "  --out       Output path (default: stdout)")
	fmt.Fprintln(out, "  --language  BCP 47 language tag for number formatting")
	fmt.Fprintln(out, "  --version   Show version")
}

// buildContext creates the execution context the flags and config describe:
// a SQL context when a DSN is set, otherwise the map context over the data
// file and --var bindings.
func buildContext(cfg config.Config, vars varFlags) (contexts.Context, func() error, error) {
	if cfg.DB != "" {
		sqlCtx, err := contexts.OpenSQL(cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		return sqlCtx, sqlCtx.Close, nil
	}

	data := map[string]any{}
	if cfg.Data != "" {
		raw, err := os.ReadFile(cfg.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("reading data file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, nil, fmt.Errorf("parsing data file %s: %w", cfg.Data, err)
		}
	}
	for name, value := range vars {
		data[name] = value
	}

	mapCtx := contexts.NewMapContext(data)
	if cfg.Language != "" {
		tag, err := language.Parse(cfg.Language)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid language %q: %w", cfg.Language, err)
		}
		mapCtx.SetLanguage(tag)
	}
	mapCtx.SetDateFormat(cfg.Date.Layout, monday.Locale(cfg.Date.Locale))
	return mapCtx, func() error { return nil }, nil
}

func renderOnce(cfg config.Config, vars varFlags, docPath string, stdout, stderr io.Writer) error {
	ectx, closeCtx, err := buildContext(cfg, vars)
	if err != nil {
		return err
	}
	defer closeCtx()
	return renderTo(cfg, ectx, docPath, stdout)
}

func renderTo(cfg config.Config, ectx contexts.Context, docPath string, stdout io.Writer) error {
	// Opening the document through a store gives markdown and gzip support
	// for the document itself, not just for includes.
	docStore := store.NewFSStore(filepath.Dir(docPath))
	doc, err := docStore.Open(filepath.Base(docPath))
	if err != nil {
		return err
	}

	includeStore := store.NewFSStore(cfg.Store)
	if err := render.Render(doc, ectx, render.WithStore(includeStore)); err != nil {
		return err
	}

	out := stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := dom.Serialize(out, doc); err != nil {
		return err
	}
	_, err = io.WriteString(out, "\n")
	return err
}

// watch re-renders the document whenever it or the data file changes.
func watch(ctx context.Context, cfg config.Config, vars varFlags, docPath string, stdout, stderr io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(docPath)); err != nil {
		return err
	}
	if cfg.Data != "" {
		if err := watcher.Add(filepath.Dir(cfg.Data)); err != nil {
			return err
		}
	}

	renderNow := func() {
		if err := renderOnce(cfg, vars, docPath, stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "render: %v\n", err)
		}
	}
	renderNow()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if event.Name == docPath || (cfg.Data != "" && event.Name == cfg.Data) {
				renderNow()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(stderr, "watch: %v\n", err)
		}
	}
}
