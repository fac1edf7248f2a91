package text

import (
	"strings"
	"unicode/utf8"
)

// sentenceTerminators end a sentence for ChunkBySentence.
const sentenceTerminators = ".!?。！？"

// ChunkBySentence splits text into chunks at sentence boundaries, grouping
// consecutive sentences while staying within maxSymbols runes per chunk.
// Synthesis decodes each chunk separately so a single utterance never has to
// outrun the decoder frame cap. If maxSymbols is 0, no splitting is performed.
// Sentences that individually exceed maxSymbols are kept intact.
func ChunkBySentence(text string, maxSymbols int) []string {
	if maxSymbols <= 0 {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)

		if size == 0 {
			current.WriteString(s)
			size = n

			continue
		}

		if size+1+n > maxSymbols {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(s)
			size = n
		} else {
			current.WriteByte(' ')
			current.WriteString(s)
			size += 1 + n
		}
	}

	if size > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// splitSentences splits text after each terminator, keeping the terminator
// attached to its sentence. Empty segments are dropped.
func splitSentences(text string) []string {
	var sentences []string

	start := 0

	for i, r := range text {
		if !strings.ContainsRune(sentenceTerminators, r) {
			continue
		}

		end := i + utf8.RuneLen(r)
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}

		start = end
	}

	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}
