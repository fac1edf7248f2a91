package text

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "passthrough", input: "Hello world", want: "Hello world"},
		{name: "trims edges", input: "\t\n Hello \n\t", want: "Hello"},
		{name: "line breaks become spaces", input: "line one\r\nline two\rthree", want: "line one line two three"},
		{name: "composes to NFC", input: "Cafe\u0301", want: "Caf\u00e9"},
		{name: "rejects empty", input: "", wantErr: ErrEmptyText},
		{name: "rejects whitespace", input: "  \t\n ", wantErr: ErrEmptyText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	const punct = `,.!?'-`

	tests := []struct {
		name  string
		input string
		opts  CleanOptions
		want  string
	}{
		{
			name:  "no options",
			input: "Hello,  World!",
			want:  "Hello,  World!",
		},
		{
			name:  "punctuation then collapse",
			input: "Hello , World !",
			opts:  CleanOptions{RemovePunctuation: true, Punctuation: punct, CollapseWhitespace: true},
			want:  "Hello World",
		},
		{
			name:  "punctuation without collapse leaves double spaces",
			input: "a - b",
			opts:  CleanOptions{RemovePunctuation: true, Punctuation: punct},
			want:  "a  b",
		},
		{
			name:  "lowercase",
			input: "ÄBC Def",
			opts:  CleanOptions{Lowercase: true},
			want:  "äbc def",
		},
		{
			name:  "collapse tabs and newlines",
			input: "  one\t\ttwo\nthree  ",
			opts:  CleanOptions{CollapseWhitespace: true},
			want:  "one two three",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input, tt.opts); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
