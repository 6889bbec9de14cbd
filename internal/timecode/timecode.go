// Package timecode converts between seconds, human timecode strings and
// frame counts. Every function here is pure and safe for concurrent use.
package timecode

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultSnapThreshold is the distance from a frame boundary under which a
// time is treated as landing exactly on that frame.
const DefaultSnapThreshold = 2 * time.Millisecond

// ParseError reports a time value that could not be interpreted.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid time value %q: %s", e.Input, e.Reason)
}

// Snapper converts seconds to frames, snapping to the nearest frame when the
// exact position is within Threshold of it and truncating otherwise.
type Snapper struct {
	Threshold time.Duration
}

// NewSnapper returns a Snapper with the given threshold. A non-positive
// threshold falls back to DefaultSnapThreshold.
func NewSnapper(threshold time.Duration) Snapper {
	if threshold <= 0 {
		threshold = DefaultSnapThreshold
	}
	return Snapper{Threshold: threshold}
}

// Frames returns the frame index for seconds at fps. The result is never
// negative and is non-decreasing in seconds.
func (s Snapper) Frames(seconds, fps float64) int64 {
	if fps <= 0 || seconds <= 0 || math.IsNaN(seconds) || math.IsNaN(fps) {
		return 0
	}
	exact := seconds * fps
	nearest := math.Round(exact)
	if math.Abs(exact-nearest) < s.Threshold.Seconds()*fps {
		return int64(nearest)
	}
	return int64(math.Floor(exact))
}

// SecondsToFrames converts with the default 2ms snap threshold.
func SecondsToFrames(seconds, fps float64) int64 {
	return NewSnapper(DefaultSnapThreshold).Frames(seconds, fps)
}

// FramesToSeconds is the inverse of SecondsToFrames, rounded to milliseconds.
func FramesToSeconds(frames int64, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return RoundMillis(float64(frames) / fps)
}

// RoundMillis rounds seconds to three decimal places.
func RoundMillis(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}

// ParseTimeValue interprets raw as seconds. Accepted forms are numbers,
// numeric strings, "MM:SS[.mmm]" and "HH:MM:SS[.mmm]". On failure it returns
// 0 and a *ParseError.
func ParseTimeValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return checkSeconds(fmt.Sprint(v), v)
	case float32:
		return checkSeconds(fmt.Sprint(v), float64(v))
	case int:
		return checkSeconds(strconv.Itoa(v), float64(v))
	case int64:
		return checkSeconds(strconv.FormatInt(v, 10), float64(v))
	case json.Number:
		return ParseTimeString(v.String())
	case string:
		return ParseTimeString(v)
	case nil:
		return 0, &ParseError{Input: "", Reason: "missing value"}
	default:
		return 0, &ParseError{Input: fmt.Sprint(raw), Reason: fmt.Sprintf("unsupported type %T", raw)}
	}
}

// ParseTimeString parses the string forms accepted by ParseTimeValue.
func ParseTimeString(s string) (float64, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return 0, &ParseError{Input: s, Reason: "empty"}
	}

	parts := strings.Split(in, ":")
	var hours, minutes float64
	var secPart string

	switch len(parts) {
	case 3:
		h, err := parseComponent(parts[0])
		if err != nil {
			return 0, &ParseError{Input: s, Reason: "bad hours"}
		}
		m, err := parseComponent(parts[1])
		if err != nil {
			return 0, &ParseError{Input: s, Reason: "bad minutes"}
		}
		hours, minutes, secPart = h, m, parts[2]
	case 2:
		m, err := parseComponent(parts[0])
		if err != nil {
			return 0, &ParseError{Input: s, Reason: "bad minutes"}
		}
		minutes, secPart = m, parts[1]
	case 1:
		secPart = parts[0]
	default:
		return 0, &ParseError{Input: s, Reason: "too many separators"}
	}

	sec, err := strconv.ParseFloat(truncateFraction(strings.ReplaceAll(strings.TrimSpace(secPart), ",", ".")), 64)
	if err != nil || sec < 0 || math.IsInf(sec, 0) || math.IsNaN(sec) {
		return 0, &ParseError{Input: s, Reason: "bad seconds"}
	}

	return RoundMillis(hours*3600 + minutes*60 + sec), nil
}

// truncateFraction keeps at most millisecond digits so a parsed value never
// rounds up into the next whole second.
func truncateFraction(s string) string {
	whole, frac, ok := strings.Cut(s, ".")
	if !ok || len(frac) <= 3 || strings.ContainsAny(frac, "eE") {
		return s
	}
	return whole + "." + frac[:3]
}

func parseComponent(s string) (float64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

func checkSeconds(input string, v float64) (float64, error) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Input: input, Reason: "out of range"}
	}
	return RoundMillis(v), nil
}

// FormatSeconds renders seconds as zero-padded "HH:MM:SS", dropping the
// sub-second part.
func FormatSeconds(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(RoundMillis(seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatMillis renders seconds as "HH:MM:SS.mmm", the form written into
// canonical guides.
func FormatMillis(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, (ms%3600000)/60000, (ms%60000)/1000, ms%1000)
}
