package text

import (
	"slices"
	"testing"
)

func TestSymbolsLayout(t *testing.T) {
	s := NewSymbols("ab ", ".,", true)

	if s.Len() != 3+2+3 {
		t.Fatalf("Len() = %d, want 8", s.Len())
	}

	checks := map[rune]int{'.': 3, ',': 4, 'a': 5, 'b': 6, ' ': 7}
	for r, want := range checks {
		if got := s.ID(r); got != want {
			t.Errorf("ID(%q) = %d, want %d", r, got, want)
		}
	}
}

func TestSymbolsWithoutPunctuation(t *testing.T) {
	s := NewSymbols("ab", ".,", false)

	if got := s.ID('a'); got != 3 {
		t.Errorf("ID('a') = %d, want 3", got)
	}

	if got := s.ID('.'); got != UNKID {
		t.Errorf("ID('.') = %d, want UNK", got)
	}
}

func TestSymbolsDuplicateKeepsFirstID(t *testing.T) {
	s := NewSymbols("a-b", "-", true)

	if got := s.ID('-'); got != 3 {
		t.Errorf("ID('-') = %d, want 3", got)
	}

	if s.Len() != 6 {
		t.Errorf("Len() = %d, want 6", s.Len())
	}
}

func TestSymbolsEncodeAppendsEOSAndMapsUnknown(t *testing.T) {
	s := NewSymbols("ab", "", false)

	got := s.Encode("abz")
	want := []int{3, 4, UNKID, EOSID}

	if !slices.Equal(got, want) {
		t.Fatalf("Encode = %v, want %v", got, want)
	}

	if got := s.Encode(""); !slices.Equal(got, []int{EOSID}) {
		t.Fatalf("Encode(\"\") = %v, want [EOS]", got)
	}
}

func TestSymbolsDecode(t *testing.T) {
	s := NewSymbols("ab", "", false)

	if got := s.Decode([]int{4, 3, PadID, EOSID}); got != "ba" {
		t.Fatalf("Decode = %q, want %q", got, "ba")
	}
}
