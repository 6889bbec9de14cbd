package ai

import (
	"fmt"
	"strings"

	"github.com/douglasnoga/editor-ia/internal/timecode"
	"github.com/douglasnoga/editor-ia/internal/transcript"
)

// Guide profiles select the editorial style and the JSON shape asked for.
const (
	ProfileGeneral     = "geral"
	ProfileVSL         = "vsl"
	ProfileYouTubeLive = "youtube_live"
)

// Profiles lists the known profile names.
var Profiles = []string{ProfileGeneral, ProfileVSL, ProfileYouTubeLive}

func ValidProfile(p string) bool {
	for _, known := range Profiles {
		if p == known {
			return true
		}
	}
	return false
}

const flatShape = `Return only a JSON object {"segments": [{"start": "HH:MM:SS.mmm", "end": "HH:MM:SS.mmm", "text": "...", "function": "..."}]}.`

var systemPrompts = map[string]string{
	ProfileGeneral: "You analyse video transcripts and pick the most relevant, impactful passages. " +
		"Skip introductions, filler and sign-offs. Prefer strong statements, rhetorical questions and turning points. " +
		"Return at least 7 cuts of 20 to 60 seconds each, using the transcript timestamps exactly. " + flatShape,

	ProfileVSL: "You edit raw recordings into a video sales letter. Open with the strongest hook, then keep " +
		"development, proof, offer, guarantee and call to action in persuasive order. Keep 60 to 75 percent of the raw footage " +
		"and segments of 60 to 90 seconds. Timestamps must come from the transcript. " +
		`Return only a JSON object {"finalDeliverable": {"segments": [{"orig": "HH:MM:SS-HH:MM:SS", "function": "gancho|desenvolvimento|prova|oferta|garantia|cta"} or {"insert": "on-screen text", "at": "HH:MM:SS"}]}}.`,

	ProfileYouTubeLive: "You find self-contained cuts in a long YouTube live stream. Each cut starts with a hook, " +
		"explains one idea with a practical example and lasts about 90 seconds. Timestamps must come from the transcript. " +
		`Return only a JSON object {"identifiedCuts": [{"theme": "...", "segments": [{"original": "HH:MM:SS-HH:MM:SS", "function": "gancho|desenvolvimento|exemplo_pratico"}]}]}.`,
}

// SystemPrompt returns the instructions for profile, falling back to the
// general profile.
func SystemPrompt(profile string) string {
	if p, ok := systemPrompts[profile]; ok {
		return p
	}
	return systemPrompts[ProfileGeneral]
}

// FormatTranscript renders one "[start - end] text" line per entry.
func FormatTranscript(t *transcript.Transcript) string {
	if t.Empty() {
		return t.Text
	}
	var b strings.Builder
	for _, e := range t.Entries {
		fmt.Fprintf(&b, "[%s - %s] %s\n", timecode.FormatMillis(e.Start), timecode.FormatMillis(e.End), e.Text)
	}
	return b.String()
}
