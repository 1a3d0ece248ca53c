package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "stencil.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
store: includes
data: site.yaml
language: de
date:
  layout: "02.01.2006"
  locale: de_DE
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseDir != dir {
		t.Errorf("expected base dir %q, got %q", dir, cfg.BaseDir)
	}
	if want := filepath.Join(dir, "includes"); cfg.Store != want {
		t.Errorf("expected store resolved to %q, got %q", want, cfg.Store)
	}
	if want := filepath.Join(dir, "site.yaml"); cfg.Data != want {
		t.Errorf("expected data resolved to %q, got %q", want, cfg.Data)
	}
	if cfg.Language != "de" {
		t.Errorf("expected language de, got %q", cfg.Language)
	}
	if cfg.Date.Layout != "02.01.2006" || cfg.Date.Locale != "de_DE" {
		t.Errorf("expected date settings kept, got %+v", cfg.Date)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `data: site.yaml`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store != dir {
		t.Errorf("expected the store to default to the config dir, got %q", cfg.Store)
	}
	if cfg.Date.Layout != "2 January 2006" || cfg.Date.Locale != "en_US" {
		t.Errorf("expected default date settings, got %+v", cfg.Date)
	}
}

func TestLoadAbsolutePathsKept(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	path := writeConfig(t, dir, "store: "+other+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store != other {
		t.Errorf("expected the absolute store kept, got %q", cfg.Store)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}

	dir := t.TempDir()
	path := writeConfig(t, dir, "store: [broken")
	if _, err := Load(path); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}
