// Package storage implements the storage server: the sentence engine that
// rewrites one sentence of a file at a time, the on-disk store with its
// atomic commit and single-level undo, and the TCP server that speaks the
// SS side of the wire protocol.
package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/scribefs/scribefs/internal/logger"
)

// terminators are the characters that end a sentence. The terminator
// belongs to the sentence it closes.
const terminators = ".?!"

// Edit is one buffered word replacement inside a locked sentence.
// WordIdx within the current word vector replaces that word; WordIdx equal
// to the vector length appends; anything beyond is skipped.
type Edit struct {
	WordIdx int
	Content string
}

// sentenceBounds returns the byte offsets [start, end) of sentence n in
// text, where sentence 0 is the prefix up to and including the first
// terminator and sentence k starts right after the kth terminator. Text
// after the last terminator counts as a final sentence. An empty text has
// exactly one sentence, number 0, which is empty.
func sentenceBounds(text string, n int) (int, int, error) {
	if n < 0 {
		return 0, 0, fmt.Errorf("sentence %d out of range", n)
	}
	start := 0
	for seen := 0; seen < n; seen++ {
		i := strings.IndexAny(text[start:], terminators)
		if i < 0 {
			return 0, 0, fmt.Errorf("sentence %d out of range: file has %d sentences", n, CountSentences(text))
		}
		start += i + 1
	}
	if i := strings.IndexAny(text[start:], terminators); i >= 0 {
		return start, start + i + 1, nil
	}
	// Trailing text without a terminator is the final sentence. Bare
	// whitespace after the last terminator is not, except for sentence 0
	// of an empty file.
	if n > 0 && strings.TrimSpace(text[start:]) == "" {
		return 0, 0, fmt.Errorf("sentence %d out of range: file has %d sentences", n, CountSentences(text))
	}
	return start, len(text), nil
}

// CountSentences reports how many sentences text holds. Trailing text
// without a terminator counts; the empty text counts as one empty
// sentence so that sentence 0 is always addressable.
func CountSentences(text string) int {
	n := strings.Count(text, ".") + strings.Count(text, "?") + strings.Count(text, "!")
	if n == 0 {
		return 1
	}
	if i := strings.LastIndexAny(text, terminators); i < len(text)-1 && strings.TrimSpace(text[i+1:]) != "" {
		n++
	}
	return n
}

// NthSentence extracts sentence n with its leading whitespace trimmed.
func NthSentence(text string, n int) (string, error) {
	start, end, err := sentenceBounds(text, n)
	if err != nil {
		return "", err
	}
	return strings.TrimLeft(text[start:end], " \t\r\n"), nil
}

// isPunctToken reports whether tok is nothing but sentence punctuation,
// such as a lone "." typed as its own word.
func isPunctToken(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !strings.ContainsRune(terminators+",;:", r) {
			return false
		}
	}
	return true
}

// joinWords rebuilds a sentence from its word vector with single spaces,
// attaching a trailing punctuation-only token directly to the word before
// it.
func joinWords(words []string) string {
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(words[0])
	for i := 1; i < len(words); i++ {
		if i == len(words)-1 && isPunctToken(words[i]) {
			b.WriteString(words[i])
			continue
		}
		b.WriteByte(' ')
		b.WriteString(words[i])
	}
	return b.String()
}

// ApplyEdits applies buffered edits to sentence n of text in FIFO order
// and returns the rebuilt file content. Out-of-range edits are skipped
// with a warning rather than failing the whole commit.
func ApplyEdits(text string, n int, edits []Edit) (string, error) {
	start, end, err := sentenceBounds(text, n)
	if err != nil {
		return "", err
	}
	body := text[start:end]
	lead := len(body) - len(strings.TrimLeft(body, " \t\r\n"))

	words := strings.Fields(body)
	for _, e := range edits {
		switch {
		case e.WordIdx >= 0 && e.WordIdx < len(words):
			words[e.WordIdx] = e.Content
		case e.WordIdx == len(words):
			words = append(words, e.Content)
		default:
			logger.Warn("skipping out-of-range edit",
				logger.WordIdx(e.WordIdx), logger.Sentence(n), "words", len(words))
		}
	}

	var b strings.Builder
	b.Grow(len(text) + 64)
	b.WriteString(text[:start])
	b.WriteString(body[:lead])
	b.WriteString(joinWords(words))
	b.WriteString(text[end:])
	return b.String(), nil
}

// Counts reports the whitespace-separated word count and the rune count
// of content, as recorded in the catalog by UPDATE_META.
func Counts(content string) (words, chars int) {
	return len(strings.Fields(content)), utf8.RuneCountInString(content)
}
