package guide

import (
	"encoding/json"
	"fmt"
	"os"
)

type canonicalSegment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text,omitempty"`
	Function string  `json:"function,omitempty"`
	Group    string  `json:"group,omitempty"`
	Kind     Kind    `json:"kind"`
	Insert   string  `json:"insert,omitempty"`
}

type canonicalGuide struct {
	SourceFormat SourceFormat       `json:"source_format"`
	Segments     []canonicalSegment `json:"segments"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// Encode writes g in the flat segments shape, so Normalize reads it back
// to the same segment list.
func Encode(g *CuttingGuide) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("nil cutting guide")
	}
	out := canonicalGuide{
		SourceFormat: g.SourceFormat,
		Segments:     make([]canonicalSegment, len(g.Segments)),
		Warnings:     g.Warnings,
	}
	for i, s := range g.Segments {
		out.Segments[i] = canonicalSegment{
			Start:    s.Start,
			End:      s.End,
			Text:     s.Label,
			Function: s.Function,
			Group:    s.Group,
			Kind:     s.Kind,
			Insert:   s.InsertText,
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// WriteFile encodes g to path.
func WriteFile(path string, g *CuttingGuide) error {
	data, err := Encode(g)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write guide %s: %w", path, err)
	}
	return nil
}
