package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestReadSynthText(t *testing.T) {
	t.Run("uses flag text", func(t *testing.T) {
		got, err := readSynthText("hello", strings.NewReader("ignored"))
		if err != nil {
			t.Fatalf("readSynthText returned error: %v", err)
		}

		if got != "hello" {
			t.Fatalf("expected hello, got %q", got)
		}
	})

	t.Run("falls back to stdin", func(t *testing.T) {
		got, err := readSynthText("", strings.NewReader(" from stdin \n"))
		if err != nil {
			t.Fatalf("readSynthText returned error: %v", err)
		}

		if got != "from stdin" {
			t.Fatalf("expected trimmed stdin text, got %q", got)
		}
	})

	t.Run("fails when both empty", func(t *testing.T) {
		if _, err := readSynthText("", strings.NewReader("   \n\t")); err == nil {
			t.Fatal("expected error for empty input")
		}
	})
}

func TestWriteSynthOutputToStdout(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSynthOutput("-", []byte("RIFF"), &buf); err != nil {
		t.Fatal(err)
	}

	if buf.String() != "RIFF" {
		t.Fatalf("stdout got %q", buf.String())
	}

	if err := writeSynthOutput("-", nil, nil); err == nil {
		t.Fatal("expected error for nil stdout")
	}
}
