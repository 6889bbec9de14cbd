package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/douglasnoga/editor-ia/internal/export"
	"github.com/douglasnoga/editor-ia/internal/guide"
)

// exportHandler builds a timeline from a caller-supplied guide and media
// description and writes it into output_dir.
func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		format := strings.ToLower(strings.TrimSpace(req.Format))
		if format == "" {
			format = export.FormatXMEML
		}
		if format != export.FormatXMEML && format != export.FormatEDL {
			WriteError(w, http.StatusBadRequest, "format must be xmeml or edl", "BAD_REQUEST")
			return
		}

		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Media.Path) == "" {
			WriteError(w, http.StatusBadRequest, "media.path is required", "BAD_REQUEST")
			return
		}
		if len(req.Guide) == 0 {
			WriteError(w, http.StatusBadRequest, "guide is required", "BAD_REQUEST")
			return
		}

		g, err := guide.Normalize(req.Guide, cfg.Logger)
		if err != nil {
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_GUIDE")
			return
		}
		if len(g.Cuts()) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "guide has no cut segments", "EMPTY_GUIDE")
			return
		}

		projectName := export.SanitizeName(req.ProjectName, 120)
		tl, err := export.Build(g, req.Media, export.Options{
			ProjectName:   projectName,
			SnapThreshold: cfg.SnapThreshold,
			Logger:        cfg.Logger,
		})
		var exportErr *export.ExportError
		if errors.As(err, &exportErr) {
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_MEDIA")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		base := projectName
		if base == "" {
			base = tl.SequenceName
		}
		outputPath := filepath.Join(req.OutputDir, base+"."+extension(format))

		if format == export.FormatEDL {
			err = export.WriteEDL(outputPath, tl)
		} else {
			err = export.WriteXMEML(outputPath, tl)
		}
		if err != nil {
			cfg.Logger.Error("export write failed", "format", format, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		stats := tl.Stats()
		WriteJSON(w, http.StatusOK, export.ExportResponse{
			Status:     "ok",
			Format:     format,
			OutputPath: outputPath,
			ClipCount:  stats.Clips,
			Markers:    stats.Markers,
			Frames:     stats.DurationFrames,
			Warnings:   append(g.Warnings, tl.Warnings...),
		})
	}
}

func extension(format string) string {
	if format == export.FormatEDL {
		return "edl"
	}
	return "xml"
}
