package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/douglasnoga/editor-ia/internal/timecode"
)

// GenerateEDL renders the timeline's clips as a CMX3600 edit list against a
// single reel.
func GenerateEDL(tl *Timeline) string {
	p := tl.Profile

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(tl.SequenceName, 70))}
	if p.DropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, c := range tl.Clips {
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "AA/V",
				timecode.FormatSMPTE(c.In, p),
				timecode.FormatSMPTE(c.Out, p),
				timecode.FormatSMPTE(c.Start, p),
				timecode.FormatSMPTE(c.End, p),
			),
			fmt.Sprintf("* FROM CLIP NAME:  %s", tl.Master.Name),
			fmt.Sprintf("* MEDIA PATH:  %s", tl.Master.Path),
		)
		if c.Label != "" {
			lines = append(lines, fmt.Sprintf("* COMMENT:  %s", flattenLine(truncateText(c.Label))))
		}
	}

	for _, m := range tl.Markers {
		if m.In != m.Out {
			continue
		}
		lines = append(lines, fmt.Sprintf("* LOC: %s %s", timecode.FormatSMPTE(m.In, p), flattenLine(m.Name)))
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL writes the rendered list to path.
func WriteEDL(path string, tl *Timeline) error {
	if err := os.WriteFile(path, []byte(GenerateEDL(tl)), 0o644); err != nil {
		return fmt.Errorf("write edl: %w", err)
	}
	return nil
}

func flattenLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
