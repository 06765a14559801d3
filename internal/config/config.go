// Package config provides configuration loading and structs for the Tsunagu server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Layout    LayoutConfig    `yaml:"layout"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Highlight HighlightConfig `yaml:"highlight"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds settings for the out-of-process embedding provider.
// Endpoint empty disables embeddings entirely (lexical-only ranking).
type EmbeddingConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
	TimeoutSec int    `yaml:"timeout_seconds"`
}

// SearchConfig holds ranking weights and retrieval settings.
// The four lexical signal boosts mirror the disjunctive scoring query:
// exact phrase, all-terms AND, 70%-coverage OR, and fuzzy (short queries only).
type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	MaxLimit         int     `yaml:"max_limit"`
	PhraseBoost      float64 `yaml:"phrase_boost"`
	AndBoost         float64 `yaml:"and_boost"`
	CoverageBoost    float64 `yaml:"coverage_boost"`
	CoverageRatio    float64 `yaml:"coverage_ratio"`
	FuzzyBoost       float64 `yaml:"fuzzy_boost"`
	FuzzyMaxTerms    int     `yaml:"fuzzy_max_terms"`
	Fuzziness        int     `yaml:"fuzziness"`
	SelfMatchPenalty float64 `yaml:"self_match_penalty"`
	VectorWeight     float64 `yaml:"vector_weight"`
	LexicalWeight    float64 `yaml:"lexical_weight"`
	BM25Saturation   float64 `yaml:"bm25_saturation"`
	SnippetLength    int     `yaml:"snippet_length"`
	IndexBatchSize   int     `yaml:"index_batch_size"`
}

// LayoutConfig holds geometric tolerances for line and paragraph grouping,
// in native PDF page units.
type LayoutConfig struct {
	// YJitter is the baseline delta under which two runs are considered the
	// same visual line when ordering (handles sub-pixel baseline jitter).
	YJitter float64 `yaml:"y_jitter"`
	// LineBreak is the baseline delta above which a new line starts.
	LineBreak float64 `yaml:"line_break"`
	// ParagraphBreak is the line-gap above which a new paragraph starts.
	ParagraphBreak float64 `yaml:"paragraph_break"`
}

// ChunkingConfig selects the chunking policy. "paragraph" keeps per-chunk
// geometry; "window" is fixed-size sliding-window chunking over page text.
type ChunkingConfig struct {
	Policy        string `yaml:"policy"`
	WindowSize    int    `yaml:"window_size"`
	WindowOverlap int    `yaml:"window_overlap"`
}

// HighlightConfig holds tolerances for highlight reconstruction,
// in page-fraction units, plus the bounded retry schedule.
type HighlightConfig struct {
	// MergeLineTolerance is the max vertical-center distance for two rects
	// to be considered the same visual line.
	MergeLineTolerance float64 `yaml:"merge_line_tolerance"`
	// MergeGapTolerance is the max horizontal gap between rects to merge.
	MergeGapTolerance float64 `yaml:"merge_gap_tolerance"`
	PadX              float64 `yaml:"pad_x"`
	PadY              float64 `yaml:"pad_y"`
	RetryAttempts     int     `yaml:"retry_attempts"`
	RetryIntervalMS   int     `yaml:"retry_interval_ms"`
}

// WatchConfig holds drop-directory ingestion settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
