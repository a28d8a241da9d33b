package project

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/paths"
)

// DefaultConfigName is the project file looked up under the project root.
const DefaultConfigName = "docgen.yaml"

// On-error policies: abort stops the session at the first document failure,
// continue renders everything and reports the failures at the end.
const (
	OnErrorAbort    = "abort"
	OnErrorContinue = "continue"
)

// KnownTargets enumerates the formats a pipeline exists for.
var KnownTargets = []string{"html", "tex", "pdf"}

// Config is the docgen.yaml project file.
type Config struct {
	// SourceDir holds the documents, relative to the project root.
	SourceDir string `yaml:"source_dir"`
	// TargetRoot receives the rendered products, one subtree per target.
	TargetRoot string `yaml:"target_root"`
	// CacheRoot overrides the default cache location (xdg cache dir).
	CacheRoot string `yaml:"cache_root,omitempty"`
	// Targets lists the formats to build for every document.
	Targets []string `yaml:"targets"`
	// MediaFormats maps a target to its preferred media formats, best
	// first. Unset targets use built-in defaults.
	MediaFormats map[string][]string `yaml:"media_formats,omitempty"`
	// Tools pins executables to explicit paths (pdflatex: /opt/tex/pdflatex).
	Tools map[string]string `yaml:"tools,omitempty"`
	// Concurrency caps how many documents render at once. Zero means
	// unbounded.
	Concurrency int `yaml:"concurrency,omitempty"`
	// OnError selects the failure policy: abort or continue.
	OnError string `yaml:"on_error,omitempty"`
	// Events configures the optional build event sink.
	Events EventsConfig `yaml:"events,omitempty"`
}

// EventsConfig points the session at a NATS event sink.
type EventsConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

var defaultMediaFormats = map[string][]string{
	"html": {".svg", ".png"},
	"tex":  {".pdf", ".png"},
	"pdf":  {".pdf", ".png"},
}

// FormatsFor returns the preferred media formats for a target, best first.
func (c *Config) FormatsFor(target string) []string {
	target = strings.TrimPrefix(target, ".")
	if formats, ok := c.MediaFormats[target]; ok {
		norm := make([]string, len(formats))
		for i, f := range formats {
			norm[i] = paths.NormExt(f)
		}
		return norm
	}
	return defaultMediaFormats[target]
}

// LoadConfig reads and validates a project file. Environment variables in
// the file are expanded, so paths may use ${HOME} style references.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal,
			"config file is not valid YAML").WithContext("path", path)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SourceDir == "" {
		c.SourceDir = "docs"
	}
	if c.TargetRoot == "" {
		c.TargetRoot = "build"
	}
	if len(c.Targets) == 0 {
		c.Targets = []string{"html"}
	}
	if c.OnError == "" {
		c.OnError = OnErrorAbort
	}
}

// Validate rejects configurations the render session cannot act on.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, t := range c.Targets {
		name := strings.TrimPrefix(t, ".")
		if !slices.Contains(KnownTargets, name) {
			return errors.ValidationFailed("targets",
				fmt.Sprintf("unknown target %q, known: %s", t, strings.Join(KnownTargets, ", ")))
		}
		if seen[name] {
			return errors.ValidationFailed("targets", fmt.Sprintf("target %q listed twice", name))
		}
		seen[name] = true
	}

	for target := range c.MediaFormats {
		if !slices.Contains(KnownTargets, strings.TrimPrefix(target, ".")) {
			return errors.ValidationFailed("media_formats",
				fmt.Sprintf("unknown target %q", target))
		}
	}

	if c.OnError != OnErrorAbort && c.OnError != OnErrorContinue {
		return errors.ValidationFailed("on_error",
			fmt.Sprintf("must be %s or %s, got %q", OnErrorAbort, OnErrorContinue, c.OnError))
	}
	if c.Concurrency < 0 {
		return errors.ValidationFailed("concurrency", "must not be negative")
	}
	return nil
}

// InitConfig writes a starter project file.
func InitConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	starter := Config{
		SourceDir:  "docs",
		TargetRoot: "build",
		Targets:    []string{"html", "pdf"},
		MediaFormats: map[string][]string{
			"html": {".svg", ".png"},
			"pdf":  {".pdf", ".png"},
		},
		OnError: OnErrorAbort,
	}

	data, err := yaml.Marshal(&starter)
	if err != nil {
		return fmt.Errorf("marshal starter config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
