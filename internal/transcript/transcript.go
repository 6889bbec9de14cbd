// Package transcript holds the speech-to-text result consumed by guide
// generation and alignment checks.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Entry is one timed span of speech. Entries are kept in non-decreasing
// start order.
type Entry struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Word is a single timed word, when the transcriber provides them.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Transcript struct {
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Text     string  `json:"text"`
	Entries  []Entry `json:"entries"`
	Words    []Word  `json:"words,omitempty"`
}

// Empty reports whether there is nothing timed to align against.
func (t *Transcript) Empty() bool {
	return t == nil || len(t.Entries) == 0
}

// Sort orders entries and words by start time, keeping ties stable.
func (t *Transcript) Sort() {
	sort.SliceStable(t.Entries, func(i, j int) bool { return t.Entries[i].Start < t.Entries[j].Start })
	sort.SliceStable(t.Words, func(i, j int) bool { return t.Words[i].Start < t.Words[j].Start })
}

// Shift moves every timestamp by offset seconds.
func (t *Transcript) Shift(offset float64) {
	for i := range t.Entries {
		t.Entries[i].Start += offset
		t.Entries[i].End += offset
	}
	for i := range t.Words {
		t.Words[i].Start += offset
		t.Words[i].End += offset
	}
}

// Merge concatenates parts in order into one transcript. Parts are expected
// to already carry absolute timestamps.
func Merge(parts ...*Transcript) *Transcript {
	out := &Transcript{}
	var texts []string
	for _, p := range parts {
		if p == nil {
			continue
		}
		if out.Language == "" {
			out.Language = p.Language
		}
		out.Entries = append(out.Entries, p.Entries...)
		out.Words = append(out.Words, p.Words...)
		if s := strings.TrimSpace(p.Text); s != "" {
			texts = append(texts, s)
		}
		if len(p.Entries) > 0 {
			if end := p.Entries[len(p.Entries)-1].End; end > out.Duration {
				out.Duration = end
			}
		}
	}
	out.Text = strings.Join(texts, " ")
	out.Sort()
	return out
}

// Load reads a transcript JSON file.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	t.Sort()
	return &t, nil
}

// Save writes t as indented JSON.
func Save(path string, t *Transcript) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
