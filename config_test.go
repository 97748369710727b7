package tiersearch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIndexOptions_ValidateRequiresTextConfig(t *testing.T) {
	opts := DefaultIndexOptions()
	err := opts.Validate()
	if err == nil {
		t.Fatal("expected an error when text_config is blank")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindInvalidOption {
		t.Errorf("expected KindInvalidOption, got %v (ok=%v)", kind, ok)
	}
}

func TestIndexOptions_ValidateFillsZeroValueDefaults(t *testing.T) {
	opts := IndexOptions{TextConfig: "english"}
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if opts.K1 != 1.2 || opts.B != 0.75 {
		t.Errorf("expected default k1/b, got k1=%f b=%f", opts.K1, opts.B)
	}
	if opts.Tunables.MemtableSpillThreshold != DefaultSpillThreshold {
		t.Errorf("expected default spill threshold, got %d", opts.Tunables.MemtableSpillThreshold)
	}
	if opts.Tunables.SegmentsPerLevel != DefaultFanout {
		t.Errorf("expected default fanout, got %d", opts.Tunables.SegmentsPerLevel)
	}
}

func TestIndexOptions_ValidatePreservesExplicitValues(t *testing.T) {
	opts := IndexOptions{TextConfig: "english", K1: 2.0, B: 0.5}
	opts.Tunables.MemtableSpillThreshold = 42
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if opts.K1 != 2.0 || opts.B != 0.5 {
		t.Errorf("expected explicit k1/b preserved, got k1=%f b=%f", opts.K1, opts.B)
	}
	if opts.Tunables.MemtableSpillThreshold != 42 {
		t.Errorf("expected explicit spill threshold preserved, got %d", opts.Tunables.MemtableSpillThreshold)
	}
}

func TestLoadIndexOptions_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "text_config: english\nk1: 1.5\nb: 0.8\ntunables:\n  memtable_spill_threshold: 100\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	opts, err := LoadIndexOptions(path)
	if err != nil {
		t.Fatalf("LoadIndexOptions: %v", err)
	}
	if opts.TextConfig != "english" || opts.K1 != 1.5 || opts.B != 0.8 {
		t.Errorf("parsed options mismatch: %+v", opts)
	}
	if opts.Tunables.MemtableSpillThreshold != 100 {
		t.Errorf("MemtableSpillThreshold = %d, want 100", opts.Tunables.MemtableSpillThreshold)
	}
}

func TestLoadIndexOptions_MissingFileErrors(t *testing.T) {
	_, err := LoadIndexOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
