package config

// ApplyDefaults sets default values for any zero values in cfg.
// The layout and highlight tolerances are the corpus-tuned defaults the
// extraction and reconstruction tests assume.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tsunagu/data/db/documents.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/tsunagu/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/tsunagu/data/indices/vectors"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TimeoutSec == 0 {
		cfg.Embedding.TimeoutSec = 30
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.PhraseBoost == 0 {
		cfg.Search.PhraseBoost = 5.0
	}
	if cfg.Search.AndBoost == 0 {
		cfg.Search.AndBoost = 3.0
	}
	if cfg.Search.CoverageBoost == 0 {
		cfg.Search.CoverageBoost = 1.5
	}
	if cfg.Search.CoverageRatio == 0 {
		cfg.Search.CoverageRatio = 0.7
	}
	if cfg.Search.FuzzyBoost == 0 {
		cfg.Search.FuzzyBoost = 0.5
	}
	if cfg.Search.FuzzyMaxTerms == 0 {
		cfg.Search.FuzzyMaxTerms = 5
	}
	if cfg.Search.Fuzziness == 0 {
		cfg.Search.Fuzziness = 2
	}
	if cfg.Search.SelfMatchPenalty == 0 {
		cfg.Search.SelfMatchPenalty = 0.05
	}
	if cfg.Search.VectorWeight == 0 {
		cfg.Search.VectorWeight = 0.7
	}
	if cfg.Search.LexicalWeight == 0 {
		cfg.Search.LexicalWeight = 0.3
	}
	if cfg.Search.BM25Saturation == 0 {
		cfg.Search.BM25Saturation = 5.0
	}
	if cfg.Search.SnippetLength == 0 {
		cfg.Search.SnippetLength = 180
	}
	if cfg.Search.IndexBatchSize == 0 {
		cfg.Search.IndexBatchSize = 50
	}
	if cfg.Layout.YJitter == 0 {
		cfg.Layout.YJitter = 2.0
	}
	if cfg.Layout.LineBreak == 0 {
		cfg.Layout.LineBreak = 4.0
	}
	if cfg.Layout.ParagraphBreak == 0 {
		cfg.Layout.ParagraphBreak = 20.0
	}
	if cfg.Chunking.Policy == "" {
		cfg.Chunking.Policy = "paragraph"
	}
	if cfg.Chunking.WindowSize == 0 {
		cfg.Chunking.WindowSize = 1000
	}
	if cfg.Chunking.WindowOverlap == 0 {
		cfg.Chunking.WindowOverlap = 150
	}
	if cfg.Highlight.MergeLineTolerance == 0 {
		cfg.Highlight.MergeLineTolerance = 0.005
	}
	if cfg.Highlight.MergeGapTolerance == 0 {
		cfg.Highlight.MergeGapTolerance = 0.01
	}
	if cfg.Highlight.PadX == 0 {
		cfg.Highlight.PadX = 0.004
	}
	if cfg.Highlight.PadY == 0 {
		cfg.Highlight.PadY = 0.006
	}
	if cfg.Highlight.RetryAttempts == 0 {
		cfg.Highlight.RetryAttempts = 8
	}
	if cfg.Highlight.RetryIntervalMS == 0 {
		cfg.Highlight.RetryIntervalMS = 50
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
