package tiersearch

import "testing"

// ═══════════════════════════════════════════════════════════════════════════════
// SMALLFLOAT QUANTIZATION TESTS (§8.1 invariant 9)
// ═══════════════════════════════════════════════════════════════════════════════

func TestQuantizeNorm_Monotone(t *testing.T) {
	lengths := []int32{1, 2, 3, 5, 8, 13, 21, 50, 100, 500, 10000}
	prev := -1.0
	for _, l := range lengths {
		got := dequantizeNorm(quantizeNorm(l))
		if got < prev {
			t.Errorf("dequantize(quantize(%d)) = %f, not monotone after previous %f", l, got, prev)
		}
		prev = got
	}
}

func TestQuantizeNorm_ZeroLength(t *testing.T) {
	if q := quantizeNorm(0); q != 0 {
		t.Errorf("quantizeNorm(0) = %d, want 0", q)
	}
}

func TestDictionaryEntry_RoundTrip(t *testing.T) {
	e := dictionaryEntry{
		TermHash:        0xDEADBEEF,
		StringOffset:    10,
		StringLen:       5,
		PostingOffset:   0,
		SkipIndexOffset: 20,
		BlockCount:      3,
		DocFreq:         42,
	}
	got := decodeDictionaryEntry(e.encode())
	if got != e {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestSkipEntry_RoundTrip(t *testing.T) {
	e := skipEntry{
		FirstDocID:    1,
		LastDocID:     127,
		DocCount:      127,
		BlockMaxTF:    9,
		BlockMinNorm:  200,
		PostingOffset: 512,
	}
	got := decodeSkipEntry(e.encode())
	if got != e {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, e)
	}
}
