// Package guide turns the cutting-guide JSON shapes produced by the
// generation step into one canonical, ordered segment list.
package guide

import "fmt"

// Kind distinguishes spans of source media from editorial insert points.
type Kind string

const (
	KindCut    Kind = "cut"
	KindInsert Kind = "insert"
)

// SourceFormat records which guide shape a CuttingGuide was parsed from.
type SourceFormat string

const (
	FormatUnknown          SourceFormat = "unknown"
	FormatFinalDeliverable SourceFormat = "final_deliverable"
	FormatIdentifiedCuts   SourceFormat = "identified_cuts"
	FormatSegments         SourceFormat = "segments"
)

// Segment is one editorial unit. Cut segments satisfy Start < End; insert
// markers have Start == End and carry InsertText instead of Label/Function.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Label      string  `json:"label,omitempty"`
	Function   string  `json:"function,omitempty"`
	Group      string  `json:"group,omitempty"`
	Kind       Kind    `json:"kind"`
	InsertText string  `json:"insert,omitempty"`
}

// Duration is End - Start for cuts and zero for inserts.
func (s Segment) Duration() float64 {
	if s.Kind != KindCut || s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// CuttingGuide is an ordered list of segments. It is built once by Normalize
// and treated as read-only afterwards; regeneration builds a new guide.
type CuttingGuide struct {
	SourceFormat SourceFormat `json:"source_format"`
	Segments     []Segment    `json:"segments"`
	Warnings     []string     `json:"warnings,omitempty"`
}

// Empty reports whether the guide has no segments at all.
func (g *CuttingGuide) Empty() bool {
	return g == nil || len(g.Segments) == 0
}

// Cuts returns the cut segments in guide order.
func (g *CuttingGuide) Cuts() []Segment {
	if g == nil {
		return nil
	}
	cuts := make([]Segment, 0, len(g.Segments))
	for _, s := range g.Segments {
		if s.Kind == KindCut {
			cuts = append(cuts, s)
		}
	}
	return cuts
}

// TotalDuration is the summed length of all cuts in seconds.
func (g *CuttingGuide) TotalDuration() float64 {
	var total float64
	for _, s := range g.Cuts() {
		total += s.Duration()
	}
	return total
}

// SchemaError reports raw guide data that matched none of the known shapes.
// Normalize still returns an empty guide alongside it.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unrecognized cutting guide: %s", e.Reason)
}
