package ai

import (
	"context"
	"testing"

	"github.com/douglasnoga/editor-ia/internal/guide"
	"github.com/douglasnoga/editor-ia/internal/transcript"
)

func sentences(spans ...[3]any) *transcript.Transcript {
	tr := &transcript.Transcript{}
	for _, s := range spans {
		tr.Entries = append(tr.Entries, transcript.Entry{Start: s[0].(float64), End: s[1].(float64), Text: s[2].(string)})
	}
	return tr
}

func TestLocalGenerator_GroupsToTargetLength(t *testing.T) {
	tr := sentences(
		[3]any{0.0, 20.0, "Primeira frase."},
		[3]any{20.0, 50.0, "Segunda frase."},
		[3]any{50.0, 70.0, "Terceira frase."},
		[3]any{70.0, 100.0, "Quarta frase."},
	)

	raw, err := NewLocalGenerator(testLogger()).GenerateGuide(context.Background(), tr, ProfileGeneral)
	if err != nil {
		t.Fatalf("GenerateGuide() error = %v", err)
	}
	g, err := guide.Normalize(raw, testLogger())
	if err != nil {
		t.Fatalf("output does not normalize: %v", err)
	}
	if len(g.Segments) != 2 {
		t.Fatalf("segments = %+v", g.Segments)
	}
	if g.Segments[0].Start != 0 || g.Segments[0].End != 50 || g.Segments[1].Start != 50 || g.Segments[1].End != 100 {
		t.Errorf("segments = %+v", g.Segments)
	}
	if g.Segments[0].Label != "Primeira frase. Segunda frase." {
		t.Errorf("label = %q", g.Segments[0].Label)
	}
}

func TestLocalGenerator_PromotesVSLHook(t *testing.T) {
	tr := sentences(
		[3]any{0.0, 10.0, "Bem-vindos ao treinamento."},
		[3]any{40.0, 50.0, "Isso vale a pena demais."},
		[3]any{50.0, 60.0, "Tenho resultados de alunos."},
	)

	raw, err := NewLocalGenerator(nil).GenerateGuide(context.Background(), tr, ProfileVSL)
	if err != nil {
		t.Fatal(err)
	}
	g, _ := guide.Normalize(raw, nil)
	if len(g.Segments) != 2 {
		t.Fatalf("segments = %+v", g.Segments)
	}
	if g.Segments[0].Start != 40 || g.Segments[0].Function != "gancho" {
		t.Errorf("hook not promoted: %+v", g.Segments[0])
	}
	if g.Segments[1].Start != 0 || g.Segments[1].End != 60 {
		t.Errorf("remaining segment = %+v", g.Segments[1])
	}
	if g.Segments[1].Function != "prova" {
		t.Errorf("function = %q, want prova", g.Segments[1].Function)
	}
}

func TestLocalGenerator_UsesWordsWhenPresent(t *testing.T) {
	tr := &transcript.Transcript{
		Entries: []transcript.Entry{{Start: 0, End: 99, Text: "ignored"}},
		Words: []transcript.Word{
			{Word: "Um", Start: 1, End: 1.5},
			{Word: "exemplo.", Start: 1.5, End: 2},
		},
	}
	raw, err := NewLocalGenerator(nil).GenerateGuide(context.Background(), tr, ProfileYouTubeLive)
	if err != nil {
		t.Fatal(err)
	}
	g, _ := guide.Normalize(raw, nil)
	if len(g.Segments) != 1 || g.Segments[0].Start != 1 || g.Segments[0].Function != "exemplo_pratico" {
		t.Errorf("segments = %+v", g.Segments)
	}
}

func TestLocalGenerator_EmptyTranscript(t *testing.T) {
	if _, err := NewLocalGenerator(nil).GenerateGuide(context.Background(), &transcript.Transcript{}, ProfileGeneral); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}
