package transcript

import (
	"strings"
)

// wordsPerSecond approximates conversational speech (150 wpm) when words
// have to be placed without timestamps.
const wordsPerSecond = 2.5

// GroupSentences joins words into sentence entries, closing a sentence on
// a word containing '.', '!' or '?'.
func GroupSentences(words []Word) []Entry {
	var out []Entry
	var cur *Entry

	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		if cur == nil {
			cur = &Entry{Start: w.Start, Text: text}
		} else {
			cur.Text += " " + text
		}
		cur.End = w.End

		if strings.ContainsAny(text, ".!?") {
			out = append(out, *cur)
			cur = nil
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

// EstimateWords spreads the words of text evenly over duration. A
// non-positive duration is derived from the word count.
func EstimateWords(text string, duration float64) []Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	if duration <= 0 {
		duration = float64(len(fields)) / wordsPerSecond
	}

	step := duration / float64(len(fields))
	words := make([]Word, len(fields))
	for i, f := range fields {
		words[i] = Word{Word: f, Start: float64(i) * step, End: float64(i+1) * step}
	}
	return words
}

// EnsureEntries fills Entries from Words, or from Text when neither timed
// form is present.
func (t *Transcript) EnsureEntries() {
	if len(t.Entries) > 0 {
		return
	}
	if len(t.Words) == 0 {
		t.Words = EstimateWords(t.Text, t.Duration)
	}
	t.Entries = GroupSentences(t.Words)
}
