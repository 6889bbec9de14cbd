package export

import (
	"encoding/json"
	"fmt"
)

const (
	FormatXMEML = "xmeml"
	FormatEDL   = "edl"
)

// MediaInfo describes the source recording a timeline cuts from.
type MediaInfo struct {
	Path     string  `json:"path"`
	FPS      float64 `json:"fps"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

// ExportError reports media metadata a timeline cannot be built from.
type ExportError struct {
	Field  string
	Reason string
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("cannot export timeline: %s %s", e.Field, e.Reason)
}

// ExportRequest is the body of an ad-hoc export: a raw guide in any known
// shape plus the media it refers to.
type ExportRequest struct {
	ProjectName string          `json:"project_name"`
	Format      string          `json:"format"`
	OutputDir   string          `json:"output_dir"`
	Media       MediaInfo       `json:"media"`
	Guide       json.RawMessage `json:"guide"`
}

type ExportResponse struct {
	Status     string   `json:"status"`
	Format     string   `json:"format"`
	OutputPath string   `json:"output_path"`
	ClipCount  int      `json:"clip_count"`
	Markers    int      `json:"marker_count"`
	Frames     int64    `json:"duration_frames"`
	Warnings   []string `json:"warnings,omitempty"`
}
