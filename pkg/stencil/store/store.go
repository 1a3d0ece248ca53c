// Package store resolves include addresses to document trees. The renderer
// depends only on the Store interface; FSStore serves documents from a
// directory and MemStore backs tests.
package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
)

// Store locates the document tree an include address refers to. Open returns
// a tree the caller may read but must not mutate; includers clone what they
// splice.
type Store interface {
	Open(address string) (*dom.Node, error)
}

// FSStore serves documents from a root directory. Supported forms:
// .html/.xml parsed directly, .html.gz/.xml.gz decompressed first, and .md
// converted from Markdown (GitHub flavored) before parsing. An address
// without an extension tries each form in that order.
type FSStore struct {
	Root     string
	markdown goldmark.Markdown
}

// NewFSStore creates a store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{
		Root: dir,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

var extensions = []string{"", ".html", ".html.gz", ".xml", ".xml.gz", ".md"}

// Open resolves address relative to the store root and parses the document.
func (s *FSStore) Open(address string) (*dom.Node, error) {
	cleaned := filepath.Clean(address)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return nil, fmt.Errorf("store: address %q escapes the store root", address)
	}
	base := filepath.Join(s.Root, cleaned)
	for _, ext := range extensions {
		path := base + ext
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return s.open(path)
	}
	return nil, fmt.Errorf("store: no document for address %q", address)
}

func (s *FSStore) open(path string) (*dom.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	name := path
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("store: decompressing %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	if strings.HasSuffix(name, ".md") {
		src, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("store: reading %s: %w", path, err)
		}
		var buf bytes.Buffer
		if err := s.markdown.Convert(src, &buf); err != nil {
			return nil, fmt.Errorf("store: converting %s: %w", path, err)
		}
		return dom.Parse(&buf)
	}
	return dom.Parse(r)
}

// MemStore is an in-memory store keyed by address. Sources are parsed on
// first open and cached.
type MemStore struct {
	Sources map[string]string
	parsed  map[string]*dom.Node
}

// NewMemStore creates a store over the given address → HTML source map.
func NewMemStore(sources map[string]string) *MemStore {
	return &MemStore{Sources: sources, parsed: map[string]*dom.Node{}}
}

// Open parses and returns the document for address.
func (s *MemStore) Open(address string) (*dom.Node, error) {
	if doc, ok := s.parsed[address]; ok {
		return doc, nil
	}
	src, ok := s.Sources[address]
	if !ok {
		return nil, fmt.Errorf("store: no document for address %q", address)
	}
	doc, err := dom.ParseString(src)
	if err != nil {
		return nil, err
	}
	s.parsed[address] = doc
	return doc, nil
}
