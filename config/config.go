// Package config holds the stencil CLI configuration, loaded from an
// optional YAML file and overridden by flags.
package config

// Config represents the complete stencil CLI configuration.
type Config struct {
	BaseDir  string     `yaml:"-"`        // Directory containing the config file, for resolving relative paths
	Store    string     `yaml:"store"`    // Root directory for include resolution (default: ".")
	Data     string     `yaml:"data"`     // Default YAML data file for the map context
	Output   string     `yaml:"output"`   // Output path; empty writes to stdout
	DB       string     `yaml:"db"`       // SQL context DSN; empty uses the map context
	Language string     `yaml:"language"` // BCP 47 tag for number formatting (e.g. "en", "de")
	Date     DateConfig `yaml:"date"`
}

// DateConfig controls how time values render as text.
type DateConfig struct {
	Layout string `yaml:"layout"` // Go reference layout (default: "2 January 2006")
	Locale string `yaml:"locale"` // monday locale name (default: "en_US")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: ".",
		Date: DateConfig{
			Layout: "2 January 2006",
			Locale: "en_US",
		},
	}
}
