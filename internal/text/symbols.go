package text

import (
	"strings"
	"unicode/utf8"
)

// Reserved symbol ids shared by every vocabulary.
const (
	PadID = 0
	EOSID = 1
	UNKID = 2

	reservedSymbols = 3
)

// Symbols is a closed symbol vocabulary. Ids 0..2 are PAD, EOS and UNK;
// punctuation (when enabled) follows, then the alphabet in the order given.
type Symbols struct {
	toID   map[rune]int
	fromID []rune
}

// NewSymbols builds a vocabulary. Runes repeated across punctuation and
// alphabet keep the id of their first occurrence.
func NewSymbols(alphabet, punctuation string, usePunctuation bool) *Symbols {
	s := &Symbols{
		toID:   make(map[rune]int),
		fromID: make([]rune, reservedSymbols),
	}

	if usePunctuation {
		s.add(punctuation)
	}

	s.add(alphabet)

	return s
}

func (s *Symbols) add(chars string) {
	for _, r := range chars {
		if _, ok := s.toID[r]; ok {
			continue
		}

		s.toID[r] = len(s.fromID)
		s.fromID = append(s.fromID, r)
	}
}

// Len returns the number of ids including the reserved ones.
func (s *Symbols) Len() int { return len(s.fromID) }

// ID returns the id of r, or UNKID when r is not in the vocabulary.
func (s *Symbols) ID(r rune) int {
	if id, ok := s.toID[r]; ok {
		return id
	}

	return UNKID
}

// Encode maps every rune of text to its id and terminates the sequence
// with EOS.
func (s *Symbols) Encode(text string) []int {
	ids := make([]int, 0, len(text)+1)
	for _, r := range text {
		ids = append(ids, s.ID(r))
	}

	return append(ids, EOSID)
}

// Decode converts ids back to text. PAD and EOS are dropped, UNK becomes
// the replacement character.
func (s *Symbols) Decode(ids []int) string {
	var b strings.Builder

	for _, id := range ids {
		switch {
		case id == PadID || id == EOSID:
		case id == UNKID || id < 0 || id >= len(s.fromID):
			b.WriteRune(utf8.RuneError)
		default:
			b.WriteRune(s.fromID[id])
		}
	}

	return b.String()
}
