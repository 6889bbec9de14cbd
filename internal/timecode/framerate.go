package timecode

import (
	"fmt"
	"math"
)

// ntscTolerance is how far a measured rate may sit from a canonical NTSC
// rate and still be snapped to it.
const ntscTolerance = 0.1

var ntscRates = []float64{23.976, 29.97, 59.94}

// FrameRateProfile describes a normalized source frame rate.
type FrameRateProfile struct {
	FPS       float64 `json:"fps"`
	IsNTSC    bool    `json:"is_ntsc"`
	DropFrame bool    `json:"drop_frame"`
}

// DetectFrameRateProfile snaps measured to the nearest NTSC rate within
// 0.1 fps. Outside that window the measured rate is kept as-is, and so is
// any whole-number rate: 24 and 30 are real rates, not mismeasured NTSC.
func DetectFrameRateProfile(measured float64) FrameRateProfile {
	if math.Abs(measured-math.Round(measured)) < 0.001 {
		return FrameRateProfile{FPS: measured}
	}
	for _, rate := range ntscRates {
		if math.Abs(measured-rate) <= ntscTolerance {
			return FrameRateProfile{
				FPS:       rate,
				IsNTSC:    true,
				DropFrame: rate == 29.97 || rate == 59.94,
			}
		}
	}
	return FrameRateProfile{FPS: measured}
}

// Timebase is the integer rate an NLE expects next to the ntsc flag.
func (p FrameRateProfile) Timebase() int {
	tb := int(math.Round(p.FPS))
	if tb <= 0 {
		return 30
	}
	return tb
}

// DisplayFormat returns "DF" for drop-frame profiles and "NDF" otherwise.
func (p FrameRateProfile) DisplayFormat() string {
	if p.DropFrame {
		return "DF"
	}
	return "NDF"
}

func (p FrameRateProfile) String() string {
	if p.IsNTSC {
		return fmt.Sprintf("%.3f fps NTSC %s", p.FPS, p.DisplayFormat())
	}
	return fmt.Sprintf("%g fps", p.FPS)
}

// FormatSMPTE renders a frame count as HH:MM:SS:FF, or HH:MM:SS;FF with
// drop-frame numbering when the profile requires it.
func FormatSMPTE(frames int64, p FrameRateProfile) string {
	if frames < 0 {
		frames = 0
	}
	tb := int64(p.Timebase())
	sep := ":"

	if p.DropFrame {
		sep = ";"
		frames = dropFrameNumber(frames, p.FPS, tb)
	}

	ff := frames % tb
	totalSeconds := frames / tb
	return fmt.Sprintf("%02d:%02d:%02d%s%02d",
		totalSeconds/3600, (totalSeconds/60)%60, totalSeconds%60, sep, ff)
}

// dropFrameNumber maps a real frame count to the displayed frame number by
// skipping the labels drop-frame timecode omits at each minute boundary
// except every tenth minute.
func dropFrameNumber(frames int64, fps float64, tb int64) int64 {
	drop := int64(math.Round(fps * 0.066666))
	per10Min := int64(math.Round(fps * 600))
	perMin := tb*60 - drop

	d := frames / per10Min
	m := frames % per10Min
	if m > drop {
		return frames + drop*9*d + drop*((m-drop)/perMin)
	}
	return frames + drop*9*d
}
