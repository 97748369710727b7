package tiersearch

import "testing"

func TestStringTable_InsertOrGet_ReturnsSameTermOnRepeat(t *testing.T) {
	st := NewStringTable(NewArena(false))
	a := st.InsertOrGet([]byte("quick"))
	b := st.InsertOrGet([]byte("quick"))
	if a != b {
		t.Error("expected InsertOrGet to return the same *Term for the same key")
	}
	if st.Len() != 1 {
		t.Errorf("Len() = %d, want 1", st.Len())
	}
}

func TestStringTable_Lookup_MissReturnsFalse(t *testing.T) {
	st := NewStringTable(NewArena(false))
	if _, ok := st.Lookup([]byte("absent")); ok {
		t.Error("expected miss for never-inserted key")
	}
}

func TestStringTable_Clear_RemovesAllEntries(t *testing.T) {
	st := NewStringTable(NewArena(false))
	st.InsertOrGet([]byte("a"))
	st.InsertOrGet([]byte("b"))
	st.Clear()
	if st.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", st.Len())
	}
}

func TestStringTable_Each_VisitsEveryTerm(t *testing.T) {
	st := NewStringTable(NewArena(false))
	words := []string{"a", "b", "c"}
	for _, w := range words {
		st.InsertOrGet([]byte(w))
	}
	seen := make(map[string]bool)
	st.Each(func(term *Term) { seen[term.Text] = true })
	for _, w := range words {
		if !seen[w] {
			t.Errorf("Each did not visit %q", w)
		}
	}
}
