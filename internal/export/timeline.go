package export

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/douglasnoga/editor-ia/internal/guide"
	"github.com/douglasnoga/editor-ia/internal/timecode"
)

const (
	// MaxMarkerText bounds marker names and comments.
	MaxMarkerText = 200

	defaultWidth  = 1920
	defaultHeight = 1080
)

// Timeline is the exportable edit: one master clip and one sequence whose
// clips and markers are laid end to end in guide order.
type Timeline struct {
	ProjectName    string
	SequenceName   string
	Profile        timecode.FrameRateProfile
	Master         MasterClip
	Clips          []Clip
	Markers        []Marker
	DurationFrames int64
	Warnings       []string
}

type MasterClip struct {
	Name           string
	Path           string
	PathURL        string
	DurationFrames int64
	Width          int
	Height         int
}

// Clip places a source span [In, Out) at [Start, End) on the sequence.
type Clip struct {
	Index    int
	Name     string
	Label    string
	Function string
	Start    int64
	End      int64
	In       int64
	Out      int64
}

func (c Clip) Duration() int64 { return c.End - c.Start }

// Marker spans [In, Out] on the sequence; inserts have In == Out.
type Marker struct {
	Name    string
	Comment string
	In      int64
	Out     int64
}

// Options tune Build. The zero value uses defaults throughout.
type Options struct {
	ProjectName   string
	SnapThreshold time.Duration
	Logger        *slog.Logger
}

// Build lays out g against media. Cuts whose start is not before their end
// are skipped with a warning; bad media metadata is an *ExportError.
func Build(g *guide.CuttingGuide, media MediaInfo, opts Options) (*Timeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if media.FPS <= 0 || math.IsNaN(media.FPS) || math.IsInf(media.FPS, 0) {
		return nil, &ExportError{Field: "fps", Reason: fmt.Sprintf("must be positive, got %v", media.FPS)}
	}
	if media.Duration <= 0 || math.IsNaN(media.Duration) || math.IsInf(media.Duration, 0) {
		return nil, &ExportError{Field: "duration", Reason: fmt.Sprintf("must be positive, got %v", media.Duration)}
	}

	profile := timecode.DetectFrameRateProfile(media.FPS)
	snap := timecode.NewSnapper(opts.SnapThreshold)
	stem := Stem(media.Path)

	project := opts.ProjectName
	if project == "" {
		project = "AI_Edit_" + stem
	}

	width, height := media.Width, media.Height
	if width <= 0 || height <= 0 {
		width, height = defaultWidth, defaultHeight
	}

	tl := &Timeline{
		ProjectName:  project,
		SequenceName: stem + "_AI_Cuts",
		Profile:      profile,
		Master: MasterClip{
			Name:           filepath.Base(media.Path),
			Path:           media.Path,
			PathURL:        FileURL(media.Path),
			DurationFrames: int64(math.Round(media.Duration * profile.FPS)),
			Width:          width,
			Height:         height,
		},
	}

	warn := func(i int, reason string) {
		tl.Warnings = append(tl.Warnings, fmt.Sprintf("segment %d: %s", i, reason))
		logger.Warn("skipping segment in timeline", "index", i, "reason", reason)
	}

	var cursor int64
	if g != nil {
		for i, seg := range g.Segments {
			switch seg.Kind {
			case guide.KindInsert:
				tl.Markers = append(tl.Markers, Marker{
					Name:    truncateText("INSERT: " + seg.InsertText),
					Comment: truncateText(seg.InsertText),
					In:      cursor,
					Out:     cursor,
				})

			case guide.KindCut:
				if seg.Start >= seg.End {
					warn(i, fmt.Sprintf("start %.3f is not before end %.3f", seg.Start, seg.End))
					continue
				}
				length := snap.Frames(seg.End-seg.Start, profile.FPS)
				if length == 0 {
					warn(i, "shorter than one frame")
					continue
				}
				in := snap.Frames(seg.Start, profile.FPS)
				if in+length > tl.Master.DurationFrames {
					logger.Warn("segment extends past source media", "index", i,
						"out", in+length, "media_frames", tl.Master.DurationFrames)
				}

				cursor += length
				clip := Clip{
					Index:    len(tl.Clips) + 1,
					Label:    seg.Label,
					Function: seg.Function,
					Start:    cursor - length,
					End:      cursor,
					In:       in,
					Out:      in + length,
				}
				clip.Name = fmt.Sprintf("Clip %d", clip.Index)
				tl.Clips = append(tl.Clips, clip)
				tl.Markers = append(tl.Markers, Marker{
					Name:    truncateText(markerName(seg, clip.Index)),
					Comment: truncateText(seg.Function),
					In:      clip.Start,
					Out:     clip.End,
				})

			default:
				warn(i, fmt.Sprintf("unknown segment kind %q", seg.Kind))
			}
		}
	}

	tl.DurationFrames = cursor
	logger.Debug("timeline built",
		"clips", len(tl.Clips),
		"markers", len(tl.Markers),
		"duration_frames", tl.DurationFrames,
		"profile", profile.String(),
	)
	return tl, nil
}

// Stats summarizes a timeline for logs and API responses.
type Stats struct {
	Clips           int     `json:"clips"`
	Markers         int     `json:"markers"`
	DurationFrames  int64   `json:"duration_frames"`
	DurationSeconds float64 `json:"duration_seconds"`
	SourceSeconds   float64 `json:"source_seconds"`
}

func (tl *Timeline) Stats() Stats {
	return Stats{
		Clips:           len(tl.Clips),
		Markers:         len(tl.Markers),
		DurationFrames:  tl.DurationFrames,
		DurationSeconds: timecode.FramesToSeconds(tl.DurationFrames, tl.Profile.FPS),
		SourceSeconds:   timecode.FramesToSeconds(tl.Master.DurationFrames, tl.Profile.FPS),
	}
}

func markerName(seg guide.Segment, index int) string {
	switch {
	case strings.TrimSpace(seg.Label) != "":
		return seg.Label
	case seg.Function != "":
		return seg.Function
	default:
		return fmt.Sprintf("Clip %d", index)
	}
}

func truncateText(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= MaxMarkerText {
		return string(runes)
	}
	return string(runes[:MaxMarkerText])
}
