package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Store != "." {
		t.Errorf("expected store '.', got %q", cfg.Store)
	}
	if cfg.Date.Layout != "2 January 2006" {
		t.Errorf("expected the default date layout, got %q", cfg.Date.Layout)
	}
	if cfg.Date.Locale != "en_US" {
		t.Errorf("expected the default locale, got %q", cfg.Date.Locale)
	}
	if cfg.DB != "" || cfg.Data != "" || cfg.Output != "" {
		t.Error("expected data, db and output unset by default")
	}
}
