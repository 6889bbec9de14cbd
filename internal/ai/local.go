package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/douglasnoga/editor-ia/internal/timecode"
	"github.com/douglasnoga/editor-ia/internal/transcript"
)

// localProfile tunes the offline generator per guide profile.
type localProfile struct {
	targetSeconds float64
	// A sentence matching hookPatterns after hookAfter seconds is moved to
	// the front of the guide.
	hookPatterns []*regexp.Regexp
	hookAfter    float64
	classify     func(text string) string
}

var (
	vslAnchors = compileAll(
		`5 ?mil`, `8 ?mil`, `10 ?mil`,
		`vale[ra]?\s+a\s+pena`, `seria\s+caro`,
	)
	liveHooks = compileAll(
		`\bo que é\b`,
		`\bpresta[m]?\s+atenção\b`,
		`\beste[áa]\s+estat[íi]stic`,
		`\bexiste um artigo\b`,
		`\bquando você\b.*\bcopy\b`,
	)
)

var localProfiles = map[string]localProfile{
	ProfileGeneral: {targetSeconds: 60},
	ProfileVSL: {
		targetSeconds: 75,
		hookPatterns:  vslAnchors,
		hookAfter:     30,
		classify:      classifyVSL,
	},
	ProfileYouTubeLive: {
		targetSeconds: 90,
		hookPatterns:  liveHooks,
		hookAfter:     60,
		classify:      classifyLive,
	},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// LocalGenerator builds a guide from the transcript alone, without an API.
// Sentences are grown into segments up to the profile's target length.
type LocalGenerator struct {
	logger *slog.Logger
}

func NewLocalGenerator(logger *slog.Logger) *LocalGenerator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LocalGenerator{logger: logger}
}

type localSegment struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Text     string `json:"text"`
	Function string `json:"function,omitempty"`
}

func (g *LocalGenerator) GenerateGuide(ctx context.Context, t *transcript.Transcript, profile string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.New("transcript is empty")
	}
	p, ok := localProfiles[profile]
	if !ok {
		p = localProfiles[ProfileGeneral]
	}

	sentences := t.Entries
	if len(t.Words) > 0 {
		sentences = transcript.GroupSentences(t.Words)
	}
	if len(sentences) == 0 {
		return nil, errors.New("transcript has no sentences")
	}

	sentences, hooked := p.promoteHook(sentences)

	type span struct {
		start, end float64
		text       []string
	}
	var spans []span
	for _, s := range sentences {
		if n := len(spans); n > 0 && s.End-spans[n-1].start <= p.targetSeconds && s.Start >= spans[n-1].end {
			spans[n-1].end = s.End
			spans[n-1].text = append(spans[n-1].text, s.Text)
			continue
		}
		spans = append(spans, span{start: s.Start, end: s.End, text: []string{s.Text}})
	}

	out := struct {
		Segments []localSegment `json:"segments"`
	}{Segments: make([]localSegment, 0, len(spans))}

	for i, sp := range spans {
		text := strings.Join(sp.text, " ")
		seg := localSegment{
			Start: timecode.FormatMillis(sp.start),
			End:   timecode.FormatMillis(sp.end),
			Text:  text,
		}
		switch {
		case i == 0 && hooked:
			seg.Function = "gancho"
		case p.classify != nil:
			seg.Function = p.classify(strings.ToLower(text))
		}
		out.Segments = append(out.Segments, seg)
	}

	g.logger.Info("local guide generated", "profile", profile, "sentences", len(sentences), "segments", len(spans))
	return json.Marshal(out)
}

// promoteHook moves the first hook sentence found after hookAfter seconds
// to the front.
func (p localProfile) promoteHook(sentences []transcript.Entry) ([]transcript.Entry, bool) {
	if len(p.hookPatterns) == 0 {
		return sentences, false
	}
	for i, s := range sentences {
		if s.Start <= p.hookAfter || !matchesAny(p.hookPatterns, strings.ToLower(s.Text)) {
			continue
		}
		out := make([]transcript.Entry, 0, len(sentences))
		out = append(out, s)
		out = append(out, sentences[:i]...)
		out = append(out, sentences[i+1:]...)
		return out, true
	}
	return sentences, false
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func classifyVSL(text string) string {
	guarantee := strings.Contains(text, "garantia") || strings.Contains(text, "devolvemos")
	switch {
	case matchesAny(vslAnchors, text) && !guarantee:
		return "oferta"
	case guarantee || strings.Contains(text, "risco"):
		return "garantia"
	case strings.Contains(text, "resultados") || strings.Contains(text, "depoimento") || strings.Contains(text, "case"):
		return "prova"
	case strings.Contains(text, "clicar") || strings.Contains(text, "botão") || strings.Contains(text, "agora"):
		return "cta"
	default:
		return "desenvolvimento"
	}
}

func classifyLive(text string) string {
	if strings.Contains(text, "exemplo") || strings.Contains(text, "caso") {
		return "exemplo_pratico"
	}
	return "desenvolvimento"
}

type guideGenerator interface {
	GenerateGuide(ctx context.Context, t *transcript.Transcript, profile string) ([]byte, error)
}

// FallbackGenerator asks the model first and builds the guide locally when
// that call fails. Cancellation is never masked.
type FallbackGenerator struct {
	primary  guideGenerator
	fallback guideGenerator
	logger   *slog.Logger
}

func NewFallbackGenerator(primary, fallback guideGenerator, logger *slog.Logger) *FallbackGenerator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FallbackGenerator{primary: primary, fallback: fallback, logger: logger}
}

func (g *FallbackGenerator) GenerateGuide(ctx context.Context, t *transcript.Transcript, profile string) ([]byte, error) {
	raw, err := g.primary.GenerateGuide(ctx, t, profile)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	g.logger.Warn("model guide generation failed, using local generator", "error", err)
	raw, fbErr := g.fallback.GenerateGuide(ctx, t, profile)
	if fbErr != nil {
		return nil, errors.Join(err, fbErr)
	}
	return raw, nil
}
