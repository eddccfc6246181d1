// Package config loads and saves config.toml (spec §6) and layers
// environment variable overrides on top of it, following the discovery and
// precedence shape of the teacher's internal/config package but targeting
// TOML instead of YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// AutoIndexStrategy selects when the index is rebuilt (§6 [auto_index]).
type AutoIndexStrategy string

const (
	StrategyAdaptive    AutoIndexStrategy = "adaptive"
	StrategyFull        AutoIndexStrategy = "full"
	StrategyIncremental AutoIndexStrategy = "incremental"
	StrategyQuick       AutoIndexStrategy = "quick"
)

// LinkTypeConfig is one row of [graph.types] / [ontology.link_types].
type LinkTypeConfig struct {
	Inverse     string   `toml:"inverse"`
	Description string   `toml:"description,omitempty"`
	Cost        *float64 `toml:"cost,omitempty"`
	Usage       int      `toml:"usage,omitempty"`
}

// AutoIndexConfig is [auto_index].
type AutoIndexConfig struct {
	Enabled           bool              `toml:"enabled"`
	Strategy          AutoIndexStrategy `toml:"strategy"`
	AdaptiveThreshold int               `toml:"adaptive_threshold"`
	QuickNotes        int               `toml:"quick_notes"`
}

// SearchConfig is [search].
type SearchConfig struct {
	RecencyBoostNumerator float64 `toml:"recency_boost_numerator"`
	RecencyDecayDays      int     `toml:"recency_decay_days"`
}

// OntologyConfig is [ontology].
type OntologyConfig struct {
	Mode      string                    `toml:"mode"`
	NoteTypes []string                  `toml:"note_types,omitempty"`
	LinkTypes map[string]LinkTypeConfig `toml:"link_types,omitempty"`
}

// GraphConfig is the deprecated [graph] alias for ontology.link_types (§6).
type GraphConfig struct {
	Types map[string]LinkTypeConfig `toml:"types,omitempty"`
}

// Config is the full shape of config.toml (§6).
type Config struct {
	Version          uint32            `toml:"version"`
	DefaultNoteType  string            `toml:"default_note_type"`
	IDScheme         string            `toml:"id_scheme"`
	Editor           string            `toml:"editor,omitempty"`
	Branch           string            `toml:"branch,omitempty"`
	StorePath        string            `toml:"store_path,omitempty"`
	RewriteWikiLinks bool              `toml:"rewrite_wiki_links"`
	Stemming         bool              `toml:"stemming"`
	TagAliases       map[string]string `toml:"tag_aliases,omitempty"`

	Graph     GraphConfig     `toml:"graph"`
	AutoIndex AutoIndexConfig `toml:"auto_index"`
	Search    SearchConfig    `toml:"search"`
	Ontology  OntologyConfig  `toml:"ontology"`
}

// CurrentVersion is bumped whenever config.toml's shape changes in a way
// that requires migration.
const CurrentVersion uint32 = 1

// Default returns the configuration written by `qipu init` (§4.3).
func Default() *Config {
	return &Config{
		Version:          CurrentVersion,
		DefaultNoteType:  "fleeting",
		IDScheme:         "hash",
		RewriteWikiLinks: true,
		Stemming:         true,
		TagAliases:       map[string]string{},
		AutoIndex: AutoIndexConfig{
			Enabled:           true,
			Strategy:          StrategyAdaptive,
			AdaptiveThreshold: 500,
			QuickNotes:        50,
		},
		Search: SearchConfig{
			RecencyBoostNumerator: 0.5,
			RecencyDecayDays:      7,
		},
		Ontology: OntologyConfig{
			Mode: "default",
		},
	}
}

// Load reads config.toml from path. Missing optional sections default via
// Default(); unknown keys are tolerated by BurntSushi/toml (parsed and
// silently ignored, mirroring the note frontmatter decoder's tolerance of
// unknown keys).
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically-enough for a single-writer store:
// write only if content differs, same discipline as note saves (§4.3).
func Save(cfg *Config, path string) error {
	var buf strings.Builder
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	content := buf.String()

	if existing, err := os.ReadFile(path); err == nil && string(existing) == content {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating parent dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("config: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: renaming temp file: %w", err)
	}
	return nil
}

// Overlay binds the QIPU_* environment namespace over an already-loaded
// Config, following the teacher's BD_* viper convention (env vars win over
// file values). Only scalar CLI-relevant knobs are exposed this way; the
// ontology/graph tables are file-only.
type Overlay struct {
	v *viper.Viper
}

// NewOverlay constructs the QIPU_* environment overlay.
func NewOverlay() *Overlay {
	v := viper.New()
	v.SetEnvPrefix("QIPU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("editor", "")
	v.SetDefault("actor", "")
	v.SetDefault("lock-timeout", "30s")
	return &Overlay{v: v}
}

// Apply overlays environment values onto cfg in place.
func (o *Overlay) Apply(cfg *Config) {
	if e := o.v.GetString("editor"); e != "" {
		cfg.Editor = e
	}
}

// ResolveEditor resolves the editor to invoke for interactive note editing:
// QIPU_EDITOR/EDITOR/VISUAL env vars, then config.toml's editor key,
// following the precedence the teacher documents for $EDITOR/$VISUAL (§6).
func (cfg *Config) ResolveEditor() string {
	for _, name := range []string{"QIPU_EDITOR", "EDITOR", "VISUAL"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	if cfg.Editor != "" {
		return cfg.Editor
	}
	return "vi"
}

// LockTimeout is how long the store's advisory write lock (internal/store,
// backed by gofrs/flock) waits before giving up.
func LockTimeout() time.Duration { return 30 * time.Second }
