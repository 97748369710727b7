package tiersearch

import "testing"

// ═══════════════════════════════════════════════════════════════════════════════
// TOKENIZER PIPELINE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestAnalyzeWithConfig_StripsPunctuationAndLowercases(t *testing.T) {
	cfg := TokenizerConfig{MinTokenLength: 1, EnableStemming: false, EnableStopwords: false}
	got := AnalyzeWithConfig("The Quick, Brown Fox!", cfg)
	want := []string{"the", "quick", "brown", "fox"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAnalyzeWithConfig_RemovesStopwords(t *testing.T) {
	cfg := TokenizerConfig{MinTokenLength: 1, EnableStemming: false, EnableStopwords: true}
	got := AnalyzeWithConfig("the quick brown fox", cfg)
	for _, tok := range got {
		if tok == "the" {
			t.Errorf("stopword %q should have been removed", tok)
		}
	}
}

func TestAnalyzeWithConfig_Stems(t *testing.T) {
	cfg := DefaultTokenizerConfig()
	got := AnalyzeWithConfig("running dogs", cfg)
	found := false
	for _, tok := range got {
		if tok == "run" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected stemmed form 'run' in %v", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// TOKENIZE-COUNTED CONTRACT TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestTokenizeCounted_FoldsRepeats(t *testing.T) {
	cfg := TokenizerConfig{MinTokenLength: 1, EnableStemming: false, EnableStopwords: false}
	got := TokenizeCounted("quick quick brown", cfg)

	want := map[string]int32{"quick": 2, "brown": 1}
	if len(got) != len(want) {
		t.Fatalf("got %d distinct terms, want %d: %+v", len(got), len(want), got)
	}
	for _, tf := range got {
		if tf.TF != want[tf.Term] {
			t.Errorf("term %q tf = %d, want %d", tf.Term, tf.TF, want[tf.Term])
		}
	}
}

func TestTokenizeCounted_PreservesFirstOccurrenceOrder(t *testing.T) {
	cfg := TokenizerConfig{MinTokenLength: 1, EnableStemming: false, EnableStopwords: false}
	got := TokenizeCounted("zebra apple zebra mango", cfg)
	wantOrder := []string{"zebra", "apple", "mango"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %+v, want order %v", got, wantOrder)
	}
	for i, term := range wantOrder {
		if got[i].Term != term {
			t.Errorf("position %d = %q, want %q", i, got[i].Term, term)
		}
	}
}

func TestTokenizeCounted_EmptyInput(t *testing.T) {
	got := TokenizeCounted("", DefaultTokenizerConfig())
	if got != nil {
		t.Errorf("expected nil for empty input, got %+v", got)
	}
}
