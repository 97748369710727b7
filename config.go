package tiersearch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IndexOptions are the options recognized at create time (§6.7), loadable
// from a YAML config file (ambient stack, SPEC_FULL §2) the way the CLI's
// `build` subcommand consumes them.
type IndexOptions struct {
	TextConfig string          `yaml:"text_config"`
	K1         float32         `yaml:"k1"`
	B          float32         `yaml:"b"`
	Tokenizer  TokenizerConfig `yaml:"tokenizer"`
	Tunables   Tunables        `yaml:"tunables"`
}

// Tunables are the constants of §6.8, all overridable from config with the
// spec's defaults applied when a field is left at its zero value.
type Tunables struct {
	MemtableSpillThreshold int `yaml:"memtable_spill_threshold"`
	BulkLoadThreshold      int `yaml:"bulk_load_threshold"`
	SegmentsPerLevel       int `yaml:"segments_per_level"`
	MaxLevels              int `yaml:"max_levels"`
	DefaultQueryLimit      int `yaml:"default_query_limit"`
	MaxQueryLimit          int `yaml:"max_query_limit"`
	PostingBlockSize       int `yaml:"posting_block_size"`
	LogScores              bool `yaml:"log_scores"`
}

// DefaultIndexOptions returns the spec's defaults: text_config required so
// left blank here deliberately (validated by Validate), k1=1.2, b=0.75.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		K1:        1.2,
		B:         0.75,
		Tokenizer: DefaultTokenizerConfig(),
		Tunables:  DefaultTunables(),
	}
}

// DefaultTunables returns §6.8's defaults.
func DefaultTunables() Tunables {
	return Tunables{
		MemtableSpillThreshold: DefaultSpillThreshold,
		BulkLoadThreshold:      DefaultBulkLoadThreshold,
		SegmentsPerLevel:       DefaultFanout,
		MaxLevels:              Lmax,
		DefaultQueryLimit:      DefaultQueryLimit,
		MaxQueryLimit:          MaxQueryLimit,
		PostingBlockSize:       DefaultPostingBlockSize,
	}
}

// Validate implements §4.9's option validation: tokenizer config is
// required; k1/b fall back to defaults if left at zero.
func (o *IndexOptions) Validate() error {
	if o.TextConfig == "" {
		return NewError(KindInvalidOption, fmt.Errorf("text_config is required"))
	}
	if o.K1 == 0 {
		o.K1 = 1.2
	}
	if o.B == 0 {
		o.B = 0.75
	}
	if o.Tunables.MemtableSpillThreshold == 0 {
		o.Tunables.MemtableSpillThreshold = DefaultSpillThreshold
	}
	if o.Tunables.BulkLoadThreshold == 0 {
		o.Tunables.BulkLoadThreshold = DefaultBulkLoadThreshold
	}
	if o.Tunables.SegmentsPerLevel == 0 {
		o.Tunables.SegmentsPerLevel = DefaultFanout
	}
	if o.Tunables.MaxLevels == 0 {
		o.Tunables.MaxLevels = Lmax
	}
	if o.Tunables.DefaultQueryLimit == 0 {
		o.Tunables.DefaultQueryLimit = DefaultQueryLimit
	}
	if o.Tunables.MaxQueryLimit == 0 {
		o.Tunables.MaxQueryLimit = MaxQueryLimit
	}
	if o.Tunables.PostingBlockSize == 0 {
		o.Tunables.PostingBlockSize = DefaultPostingBlockSize
	}
	return nil
}

// LoadIndexOptions reads and parses a YAML config file at path, applying
// defaults via Validate.
func LoadIndexOptions(path string) (IndexOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IndexOptions{}, fmt.Errorf("read config %q: %w", path, err)
	}
	opts := DefaultIndexOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return IndexOptions{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return IndexOptions{}, err
	}
	return opts, nil
}
