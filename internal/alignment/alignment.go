// Package alignment checks whether a cutting guide's timestamps still line
// up with an independently produced transcript.
package alignment

import (
	"math"
	"strings"
	"unicode"

	"github.com/douglasnoga/editor-ia/internal/guide"
	"github.com/douglasnoga/editor-ia/internal/timecode"
	"github.com/douglasnoga/editor-ia/internal/transcript"
)

const (
	DefaultTolerance      = 5.0
	DefaultDriftThreshold = 20.0

	// minOverlapRunes is the shortest word counted as a textual match.
	minOverlapRunes = 3
)

// Result is produced fresh by every Verify call.
type Result struct {
	Compatible bool `json:"compatible"`
	// OffsetSeconds is transcript reference minus guide start: the shift that
	// would move the guide onto the transcript.
	OffsetSeconds   float64 `json:"offset_seconds"`
	GuideStart      float64 `json:"guide_start"`
	TranscriptStart float64 `json:"transcript_start"`
	TextMatched     bool    `json:"text_matched"`
	GuideEmpty      bool    `json:"guide_empty,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// Decision is the orchestrator's response to a Result.
type Decision string

const (
	Accept       Decision = "accept"
	ShiftIgnored Decision = "shift_ignored"
	Regenerate   Decision = "regenerate"
)

// Verifier compares guides against transcripts. The zero value is not
// useful; use New.
type Verifier struct {
	Tolerance      float64
	DriftThreshold float64
}

// New returns a Verifier, substituting defaults for non-positive values.
func New(tolerance, driftThreshold float64) Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if driftThreshold <= 0 {
		driftThreshold = DefaultDriftThreshold
	}
	return Verifier{Tolerance: tolerance, DriftThreshold: driftThreshold}
}

// Verify estimates drift from the guide's earliest non-trivial cut. The
// reference point is the transcript entry nearest to it whose text shares a
// word with the cut's label, or the first entry when none does.
func (v Verifier) Verify(g *guide.CuttingGuide, t *transcript.Transcript) Result {
	anchor, ok := earliestCut(g)
	if !ok {
		return Result{GuideEmpty: true, Reason: "guide has no cut segments"}
	}
	if t.Empty() {
		return Result{GuideStart: anchor.Start, Reason: "transcript has no entries"}
	}

	ref, matched := reference(anchor, t.Entries)
	offset := timecode.RoundMillis(ref.Start - anchor.Start)

	return Result{
		Compatible:      math.Abs(offset) <= v.Tolerance,
		OffsetSeconds:   offset,
		GuideStart:      anchor.Start,
		TranscriptStart: ref.Start,
		TextMatched:     matched,
	}
}

// Decide maps a Result onto the tri-state policy: compatible results are
// accepted, drift within the threshold is tolerated without correction, and
// larger drift or an empty guide calls for regeneration.
func (v Verifier) Decide(r Result) Decision {
	switch {
	case r.GuideEmpty:
		return Regenerate
	case r.Compatible:
		return Accept
	case math.Abs(r.OffsetSeconds) > v.DriftThreshold:
		return Regenerate
	default:
		return ShiftIgnored
	}
}

func earliestCut(g *guide.CuttingGuide) (guide.Segment, bool) {
	var best guide.Segment
	found := false
	for _, s := range g.Cuts() {
		if s.Duration() <= 0 {
			continue
		}
		if !found || s.Start < best.Start {
			best = s
			found = true
		}
	}
	return best, found
}

func reference(anchor guide.Segment, entries []transcript.Entry) (transcript.Entry, bool) {
	labelWords := wordSet(anchor.Label)
	if len(labelWords) == 0 {
		return entries[0], false
	}

	var best transcript.Entry
	bestDist := math.Inf(1)
	for _, e := range entries {
		if !overlaps(labelWords, e.Text) {
			continue
		}
		if d := math.Abs(e.Start - anchor.Start); d < bestDist {
			best, bestDist = e, d
		}
	}
	if math.IsInf(bestDist, 1) {
		return entries[0], false
	}
	return best, true
}

func overlaps(words map[string]struct{}, text string) bool {
	for w := range wordSet(text) {
		if _, ok := words[w]; ok {
			return true
		}
	}
	return false
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if len([]rune(f)) >= minOverlapRunes {
			set[f] = struct{}{}
		}
	}
	return set
}
