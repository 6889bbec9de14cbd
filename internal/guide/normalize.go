package guide

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/douglasnoga/editor-ia/internal/timecode"
)

// entry is one raw segment object plus the cut group it came from, if any.
type entry struct {
	group string
	value any
	// skip marks a container that held no usable entries.
	skip string
}

// matcher recognizes one guide shape. Matchers run in a fixed priority order
// and the first whose container is present wins.
type matcher struct {
	format SourceFormat
	find   func(doc map[string]any) ([]entry, bool)
	parse  func(p *parser, index int, obj map[string]any)
}

var matchers = []matcher{
	{format: FormatFinalDeliverable, find: findFinalDeliverable, parse: parseDeliverableEntry},
	{format: FormatIdentifiedCuts, find: findIdentifiedCuts, parse: parseIdentifiedCutEntry},
	{format: FormatSegments, find: findFlatSegments, parse: parseFlatEntry},
}

// Normalize parses raw guide JSON into a CuttingGuide. Malformed segment
// entries are skipped and recorded as warnings. The returned guide is never
// nil; when no known shape matches it is empty and err is a *SchemaError.
func Normalize(raw []byte, logger *slog.Logger) (*CuttingGuide, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	g := &CuttingGuide{SourceFormat: FormatUnknown, Segments: []Segment{}}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		logger.Warn("cutting guide is not a JSON object", "error", err)
		return g, &SchemaError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	for _, m := range matchers {
		entries, ok := m.find(doc)
		if !ok {
			continue
		}

		g.SourceFormat = m.format
		p := &parser{guide: g, logger: logger.With("format", string(m.format))}
		i := -1
		for _, e := range entries {
			if e.skip != "" {
				p.skipGroup(e.skip)
				continue
			}
			i++
			obj, ok := e.value.(map[string]any)
			if !ok {
				p.skip(i, "entry is not an object")
				continue
			}
			p.group = e.group
			m.parse(p, i, obj)
		}

		logger.Debug("normalized cutting guide",
			"format", string(m.format),
			"entries", len(entries),
			"segments", len(g.Segments),
			"skipped", len(g.Warnings),
		)
		return g, nil
	}

	logger.Warn("cutting guide matched no known shape", "keys", keysOf(doc))
	return g, &SchemaError{Reason: "no finalDeliverable, identifiedCuts or segments list"}
}

func findFinalDeliverable(doc map[string]any) ([]entry, bool) {
	v, ok := lookup(doc, "finalDeliverable", "vsl_final")
	if !ok {
		return nil, false
	}
	inner, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := lookupList(inner, "segments", "segmentos")
	if !ok {
		return nil, false
	}
	return entries(list, ""), true
}

func findIdentifiedCuts(doc map[string]any) ([]entry, bool) {
	v, ok := lookup(doc, "identifiedCuts", "cortes_identificados")
	if !ok {
		return nil, false
	}
	cuts, ok := v.([]any)
	if !ok {
		return nil, false
	}

	var out []entry
	for gi, c := range cuts {
		cut, ok := c.(map[string]any)
		if !ok {
			out = append(out, entry{skip: fmt.Sprintf("cut group %d: not an object", gi)})
			continue
		}
		list, ok := lookupList(cut, "segments", "segmentos")
		if !ok {
			out = append(out, entry{skip: fmt.Sprintf("cut group %d: no segments list", gi)})
			continue
		}
		out = append(out, entries(list, stringField(cut, "theme", "title", "tema"))...)
	}
	return out, true
}

func findFlatSegments(doc map[string]any) ([]entry, bool) {
	list, ok := lookupList(doc, "segments", "segmentos", "cortes")
	if !ok {
		return nil, false
	}
	return entries(list, ""), true
}

func parseDeliverableEntry(p *parser, i int, obj map[string]any) {
	if rng, ok := lookup(obj, "orig"); ok {
		start, end, err := parseRange(rng)
		if err != nil {
			p.skip(i, err.Error())
			return
		}
		p.addCut(i, start, end, stringField(obj, "text", "texto", "label"), stringField(obj, "function", "funcao"))
		return
	}

	if _, ok := lookup(obj, "insert"); ok {
		text := stringField(obj, "insert")
		if text == "" {
			p.skip(i, "insert without text")
			return
		}
		var at float64
		if raw, ok := lookup(obj, "at"); ok {
			v, err := timecode.ParseTimeValue(raw)
			if err != nil {
				p.skip(i, err.Error())
				return
			}
			at = v
		}
		p.addInsert(at, text)
		return
	}

	p.skip(i, "entry has neither orig nor insert")
}

func parseIdentifiedCutEntry(p *parser, i int, obj map[string]any) {
	rng, ok := lookup(obj, "original")
	if !ok {
		p.skip(i, "missing original range")
		return
	}
	start, end, err := parseRange(rng)
	if err != nil {
		p.skip(i, err.Error())
		return
	}
	p.addCut(i, start, end,
		stringField(obj, "texto_completo", "text", "texto", "label"),
		stringField(obj, "function", "funcao"))
}

func parseFlatEntry(p *parser, i int, obj map[string]any) {
	rawStart, okStart := lookup(obj, "original_start", "start", "inicio")
	rawEnd, okEnd := lookup(obj, "original_end", "end", "fim")

	if Kind(stringField(obj, "kind")) == KindInsert {
		text := stringField(obj, "insert")
		if text == "" {
			p.skip(i, "insert without text")
			return
		}
		var at float64
		if okStart {
			v, err := timecode.ParseTimeValue(rawStart)
			if err != nil {
				p.skip(i, err.Error())
				return
			}
			at = v
		}
		p.addInsert(at, text)
		return
	}

	if !okStart || !okEnd {
		p.skip(i, "missing start or end")
		return
	}
	start, err := timecode.ParseTimeValue(rawStart)
	if err != nil {
		p.skip(i, err.Error())
		return
	}
	end, err := timecode.ParseTimeValue(rawEnd)
	if err != nil {
		p.skip(i, err.Error())
		return
	}
	if g := stringField(obj, "group"); g != "" {
		p.group = g
	}
	p.addCut(i, start, end, stringField(obj, "text", "texto", "label"), stringField(obj, "function", "funcao"))
}

type parser struct {
	guide  *CuttingGuide
	logger *slog.Logger
	group  string
}

func (p *parser) addCut(i int, start, end float64, label, function string) {
	if start >= end {
		p.skip(i, fmt.Sprintf("start %.3f is not before end %.3f", start, end))
		return
	}
	p.guide.Segments = append(p.guide.Segments, Segment{
		Start:    start,
		End:      end,
		Label:    strings.TrimSpace(label),
		Function: strings.TrimSpace(function),
		Group:    p.group,
		Kind:     KindCut,
	})
}

func (p *parser) addInsert(at float64, text string) {
	p.guide.Segments = append(p.guide.Segments, Segment{
		Start:      at,
		End:        at,
		Kind:       KindInsert,
		InsertText: strings.TrimSpace(text),
	})
}

func (p *parser) skipGroup(reason string) {
	p.guide.Warnings = append(p.guide.Warnings, reason)
	p.logger.Warn("skipping guide cut group", "reason", reason)
}

func (p *parser) skip(i int, reason string) {
	p.guide.Warnings = append(p.guide.Warnings, fmt.Sprintf("segment %d: %s", i, reason))
	p.logger.Warn("skipping guide segment", "index", i, "reason", reason)
}

// parseRange splits "start-end" on the first dash. Bare numbers on both
// sides and timecode strings are both accepted.
func parseRange(raw any) (float64, float64, error) {
	s, ok := raw.(string)
	if !ok {
		return 0, 0, fmt.Errorf("range %v is not a string", raw)
	}
	left, right, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, fmt.Errorf("range %q has no separator", s)
	}
	start, err := timecode.ParseTimeString(left)
	if err != nil {
		return 0, 0, err
	}
	end, err := timecode.ParseTimeString(right)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func entries(list []any, group string) []entry {
	out := make([]entry, len(list))
	for i, v := range list {
		out[i] = entry{group: group, value: v}
	}
	return out
}

func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupList(m map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if list, ok := m[k].([]any); ok {
			return list, true
		}
	}
	return nil, false
}

func stringField(m map[string]any, keys ...string) string {
	v, ok := lookup(m, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
