// Package tiersearch implements a BM25 ranking index: a write-buffered,
// tiered LSM segment store with a Block-Max WAND top-K scorer, embeddable as
// the storage core behind a database index access method.
//
// ANALYSIS PIPELINE:
// ------------------
//  1. Tokenization      → split text into words
//  2. Lowercasing       → normalize case ("Quick" → "quick")
//  3. Stop word removal  → drop common words ("the", "a", ...)
//  4. Length filtering   → drop tokens shorter than MinTokenLength
//  5. Stemming          → reduce to root form ("running" → "run")
//
// tokenize(text, config) is treated as a pure function by every other
// component in this package: given the same text and config it always
// produces the same (term, tf) pairs, and nothing else in the index depends
// on how it got there. Swapping the pipeline (a different language, a
// different stemmer) never touches the memtable, segment, or scorer code.
package tiersearch

import (
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"
)

// TokenizerConfig controls the analysis pipeline. It stands in for the
// metapage's tokenizer_config_id (§6.1); BuildIndex writes id 0 there, and
// an Index tokenizes its inserts and queries with the TokenizerConfig held
// in its IndexOptions.
type TokenizerConfig struct {
	MinTokenLength  int  // minimum token length to keep (default 2)
	EnableStemming  bool // whether to apply stemming (default true)
	EnableStopwords bool // whether to remove stopwords (default true)
}

// DefaultTokenizerConfig returns the standard analysis pipeline configuration.
func DefaultTokenizerConfig() TokenizerConfig {
	return TokenizerConfig{
		MinTokenLength:  2,
		EnableStemming:  true,
		EnableStopwords: true,
	}
}

// TermFreq is one (term, frequency) pair produced by tokenizing a document.
// This is the wire shape of spec.md's "tokenize(text, config) → [(term, tf)]"
// contract.
type TermFreq struct {
	Term string
	TF   int32
}

// Analyze tokenizes text with the default configuration.
func Analyze(text string) []string {
	return AnalyzeWithConfig(text, DefaultTokenizerConfig())
}

// AnalyzeWithConfig runs the full pipeline: tokenize, lowercase, optionally
// drop stopwords, drop short tokens, optionally stem.
func AnalyzeWithConfig(text string, config TokenizerConfig) []string {
	tokens := tokenize(text)
	tokens = lowercaseFilter(tokens)

	if config.EnableStopwords {
		tokens = stopwordFilter(tokens)
	}

	tokens = lengthFilter(tokens, config.MinTokenLength)

	if config.EnableStemming {
		tokens = stemmerFilter(tokens)
	}

	return tokens
}

// TokenizeCounted runs AnalyzeWithConfig and folds repeated tokens into
// (term, tf) pairs in first-occurrence order. This is the exact shape the
// memtable's add_document contract (§4.2) consumes.
func TokenizeCounted(text string, config TokenizerConfig) []TermFreq {
	tokens := AnalyzeWithConfig(text, config)
	if len(tokens) == 0 {
		return nil
	}

	order := make([]string, 0, len(tokens))
	counts := make(map[string]int32, len(tokens))
	for _, t := range tokens {
		if _, seen := counts[t]; !seen {
			order = append(order, t)
		}
		counts[t]++
	}

	out := make([]TermFreq, len(order))
	for i, t := range order {
		out[i] = TermFreq{Term: t, TF: counts[t]}
	}
	return out
}

// tokenize splits on any rune that is not a letter or digit. Unicode-aware,
// so "café" stays one token and "price: $9.99" yields ["price", "9", "99"].
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func lowercaseFilter(tokens []string) []string {
	r := make([]string, len(tokens))
	for i, token := range tokens {
		r[i] = strings.ToLower(token)
	}
	return r
}

func stopwordFilter(tokens []string) []string {
	r := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isStopword(token) {
			r = append(r, token)
		}
	}
	return r
}

func lengthFilter(tokens []string, minLength int) []string {
	r := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) >= minLength {
			r = append(r, token)
		}
	}
	return r
}

// stemmerFilter reduces words to their root form using the Snowball (Porter2)
// English stemmer, e.g. "running" → "run".
func stemmerFilter(tokens []string) []string {
	r := make([]string, len(tokens))
	for i, token := range tokens {
		r[i] = snowballeng.Stem(token, false)
	}
	return r
}

func isStopword(token string) bool {
	_, exists := englishStopwords[token]
	return exists
}

// englishStopwords uses struct{} values (0 bytes) rather than bool or string
// since the map exists purely for membership testing.
var englishStopwords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "across": {}, "after": {}, "afterwards": {},
	"again": {}, "against": {}, "all": {}, "almost": {}, "alone": {}, "along": {},
	"already": {}, "also": {}, "although": {}, "always": {}, "am": {}, "among": {},
	"amongst": {}, "amoungst": {}, "amount": {}, "an": {}, "and": {}, "another": {},
	"any": {}, "anyhow": {}, "anyone": {}, "anything": {}, "anyway": {}, "anywhere": {},
	"are": {}, "around": {}, "as": {}, "at": {}, "back": {}, "be": {}, "became": {},
	"because": {}, "become": {}, "becomes": {}, "becoming": {}, "been": {}, "before": {},
	"beforehand": {}, "behind": {}, "being": {}, "below": {}, "beside": {}, "besides": {},
	"between": {}, "beyond": {}, "bill": {}, "both": {}, "bottom": {}, "but": {}, "by": {},
	"call": {}, "can": {}, "cannot": {}, "cant": {}, "co": {}, "con": {}, "could": {},
	"couldnt": {}, "cry": {}, "de": {}, "describe": {}, "detail": {}, "do": {}, "done": {},
	"down": {}, "due": {}, "during": {}, "each": {}, "eg": {}, "eight": {}, "either": {},
	"eleven": {}, "else": {}, "elsewhere": {}, "empty": {}, "enough": {}, "etc": {},
	"even": {}, "ever": {}, "every": {}, "everyone": {}, "everything": {}, "everywhere": {},
	"except": {}, "few": {}, "fifteen": {}, "fify": {}, "fill": {}, "find": {}, "fire": {},
	"first": {}, "five": {}, "for": {}, "former": {}, "formerly": {}, "forty": {},
	"found": {}, "four": {}, "from": {}, "front": {}, "full": {}, "further": {}, "get": {},
	"give": {}, "go": {}, "had": {}, "has": {}, "hasnt": {}, "have": {}, "he": {},
	"hence": {}, "her": {}, "here": {}, "hereafter": {}, "hereby": {}, "herein": {},
	"hereupon": {}, "hers": {}, "herself": {}, "him": {}, "himself": {}, "his": {},
	"how": {}, "however": {}, "hundred": {}, "ie": {}, "if": {}, "in": {}, "inc": {},
	"indeed": {}, "interest": {}, "into": {}, "is": {}, "it": {}, "its": {}, "itself": {},
	"keep": {}, "last": {}, "latter": {}, "latterly": {}, "least": {}, "less": {},
	"ltd": {}, "made": {}, "many": {}, "may": {}, "me": {}, "meanwhile": {}, "might": {},
	"mill": {}, "mine": {}, "more": {}, "moreover": {}, "most": {}, "mostly": {},
	"move": {}, "much": {}, "must": {}, "my": {}, "myself": {}, "name": {}, "namely": {},
	"neither": {}, "never": {}, "nevertheless": {}, "next": {}, "nine": {}, "no": {},
	"nobody": {}, "none": {}, "noone": {}, "nor": {}, "not": {}, "nothing": {}, "now": {},
	"nowhere": {}, "of": {}, "off": {}, "often": {}, "on": {}, "once": {}, "one": {},
	"only": {}, "onto": {}, "or": {}, "other": {}, "others": {}, "otherwise": {}, "our": {},
	"ours": {}, "ourselves": {}, "out": {}, "over": {}, "own": {}, "part": {}, "per": {},
	"perhaps": {}, "please": {}, "put": {}, "rather": {}, "re": {}, "same": {}, "see": {},
	"seem": {}, "seemed": {}, "seeming": {}, "seems": {}, "serious": {}, "several": {},
	"she": {}, "should": {}, "show": {}, "side": {}, "since": {}, "sincere": {}, "six": {},
	"sixty": {}, "so": {}, "some": {}, "somehow": {}, "someone": {}, "something": {},
	"sometime": {}, "sometimes": {}, "somewhere": {}, "still": {}, "such": {}, "system": {},
	"take": {}, "ten": {}, "than": {}, "that": {}, "the": {}, "their": {}, "them": {},
	"themselves": {}, "then": {}, "thence": {}, "there": {}, "thereafter": {}, "thereby": {},
	"therefore": {}, "therein": {}, "thereupon": {}, "these": {}, "they": {}, "thickv": {},
	"thin": {}, "third": {}, "this": {}, "those": {}, "though": {}, "three": {}, "through": {},
	"throughout": {}, "thru": {}, "thus": {}, "to": {}, "together": {}, "too": {}, "top": {},
	"toward": {}, "towards": {}, "twelve": {}, "twenty": {}, "two": {}, "un": {}, "under": {},
	"until": {}, "up": {}, "upon": {}, "us": {}, "very": {}, "via": {}, "was": {}, "we": {},
	"well": {}, "were": {}, "what": {}, "whatever": {}, "when": {}, "whence": {}, "whenever": {},
	"where": {}, "whereafter": {}, "whereas": {}, "whereby": {}, "wherein": {}, "whereupon": {},
	"wherever": {}, "whether": {}, "which": {}, "while": {}, "whither": {}, "who": {},
	"whoever": {}, "whole": {}, "whom": {}, "whose": {}, "why": {}, "will": {}, "with": {},
	"within": {}, "without": {}, "would": {}, "yet": {}, "you": {}, "your": {}, "yours": {},
	"yourself": {}, "yourselves": {},
}
