package text

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize prepares raw input text for synthesis.
// It composes the text to NFC, folds line breaks into spaces, trims
// surrounding whitespace and rejects empty or whitespace-only input.
func Normalize(s string) (string, error) {
	s = norm.NFC.String(s)

	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")

	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// CleanOptions selects the independent cleaning steps applied by Clean.
type CleanOptions struct {
	// RemovePunctuation deletes every rune found in Punctuation.
	RemovePunctuation bool
	Punctuation       string
	// Lowercase folds the text to lower case. Only raw text is folded;
	// phoneme strings are case-significant.
	Lowercase bool
	// CollapseWhitespace replaces whitespace runs with a single space and
	// trims the ends.
	CollapseWhitespace bool
}

var lowerCaser = cases.Lower(language.Und)

// Clean applies punctuation removal, case folding and whitespace collapsing
// in that fixed order. Collapsing runs last so gaps left by removed
// punctuation are merged too.
func Clean(s string, opts CleanOptions) string {
	s = norm.NFC.String(s)

	if opts.RemovePunctuation {
		s = RemovePunctuation(s, opts.Punctuation)
	}

	if opts.Lowercase {
		s = lowerCaser.String(s)
	}

	if opts.CollapseWhitespace {
		s = CollapseWhitespace(s)
	}

	return s
}

// RemovePunctuation drops all runes of s that appear in punctuation.
func RemovePunctuation(s, punctuation string) string {
	if punctuation == "" {
		return s
	}

	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}

		return r
	}, s)
}

// CollapseWhitespace replaces every whitespace run with one space and trims
// leading and trailing whitespace.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
