package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/stencila/stencila-sub009/pkg/stencil/dom"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeGzip(t *testing.T, dir, name, content string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFSStoreOpensHTML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "header.html", `<h1 id="t">Title</h1>`)

	s := NewFSStore(dir)
	for _, address := range []string{"header", "header.html"} {
		doc, err := s.Open(address)
		if err != nil {
			t.Fatalf("Open(%q): %v", address, err)
		}
		n, err := doc.Select("#t")
		if err != nil {
			t.Fatal(err)
		}
		if n == nil || n.Text() != "Title" {
			t.Errorf("Open(%q): expected the h1, got %s", address, dom.SerializeString(doc))
		}
	}
}

func TestFSStoreOpensGzip(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, dir, "big.html.gz", `<p id="p">compressed</p>`)

	s := NewFSStore(dir)
	doc, err := s.Open("big")
	if err != nil {
		t.Fatal(err)
	}
	n, _ := doc.Select("#p")
	if n == nil || n.Text() != "compressed" {
		t.Errorf("expected the decompressed content, got %s", dom.SerializeString(doc))
	}
}

func TestFSStoreConvertsMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# Heading\n\nSome *text*.\n")

	s := NewFSStore(dir)
	doc, err := s.Open("notes")
	if err != nil {
		t.Fatal(err)
	}
	h1, _ := doc.Select("h1")
	if h1 == nil || h1.Text() != "Heading" {
		t.Errorf("expected a converted heading, got %s", dom.SerializeString(doc))
	}
	em, _ := doc.Select("em")
	if em == nil || em.Text() != "text" {
		t.Errorf("expected emphasis converted, got %s", dom.SerializeString(doc))
	}
}

func TestFSStoreSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("snippets", "card.html"), `<div class="card">x</div>`)

	s := NewFSStore(dir)
	if _, err := s.Open("snippets/card"); err != nil {
		t.Fatal(err)
	}
}

func TestFSStoreMissing(t *testing.T) {
	s := NewFSStore(t.TempDir())
	if _, err := s.Open("nope"); err == nil {
		t.Error("expected an error for a missing address")
	}
}

func TestFSStoreRefusesEscapes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.html", `<p>x</p>`)

	s := NewFSStore(filepath.Join(dir, "sub"))
	for _, address := range []string{"../ok", "../../etc/passwd", "/etc/passwd"} {
		if _, err := s.Open(address); err == nil {
			t.Errorf("expected address %q refused", address)
		}
	}
}

func TestMemStore(t *testing.T) {
	s := NewMemStore(map[string]string{"a": `<p id="p">hi</p>`})

	doc, err := s.Open("a")
	if err != nil {
		t.Fatal(err)
	}
	n, _ := doc.Select("#p")
	if n == nil || n.Text() != "hi" {
		t.Errorf("got %s", dom.SerializeString(doc))
	}

	// Repeated opens return the cached tree.
	again, err := s.Open("a")
	if err != nil {
		t.Fatal(err)
	}
	if again != doc {
		t.Error("expected the cached document")
	}

	if _, err := s.Open("missing"); err == nil {
		t.Error("expected an error for an unknown address")
	}
}
