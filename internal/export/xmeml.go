package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"

	"github.com/douglasnoga/editor-ia/internal/timecode"
)

const (
	xmemlVersion   = "4"
	masterClipID   = "master_clip"
	masterFileID   = "master_media_file"
	sequenceID     = "ai_sequence"
	audioRate      = 48000
	audioDepth     = 16
	xmemlDoctype   = "<!DOCTYPE xmeml>\n"
	pixelAspect    = "square"
	fieldDominance = "none"
)

// xmlBool renders as TRUE/FALSE, which is what Premiere and Resolve expect.
type xmlBool bool

func (b xmlBool) MarshalText() ([]byte, error) {
	if b {
		return []byte("TRUE"), nil
	}
	return []byte("FALSE"), nil
}

func (b *xmlBool) UnmarshalText(text []byte) error {
	v, err := strconv.ParseBool(string(bytes.TrimSpace(text)))
	if err != nil {
		return fmt.Errorf("invalid xmeml boolean %q", text)
	}
	*b = xmlBool(v)
	return nil
}

type xmemlDoc struct {
	XMLName xml.Name     `xml:"xmeml"`
	Version string       `xml:"version,attr"`
	Project xmemlProject `xml:"project"`
}

type xmemlProject struct {
	Name     string          `xml:"name"`
	Children projectChildren `xml:"children"`
}

type projectChildren struct {
	Bins      []xmemlBin      `xml:"bin"`
	Sequences []xmemlSequence `xml:"sequence"`
}

type xmemlBin struct {
	Name     string      `xml:"name"`
	Children binChildren `xml:"children"`
}

type binChildren struct {
	Clips []xmemlMasterClip `xml:"clip"`
}

type xmemlMasterClip struct {
	ID       string    `xml:"id,attr"`
	Name     string    `xml:"name"`
	Duration int64     `xml:"duration"`
	Rate     xmemlRate `xml:"rate"`
	File     xmemlFile `xml:"file"`
}

type xmemlRate struct {
	Timebase int     `xml:"timebase"`
	NTSC     xmlBool `xml:"ntsc"`
}

type xmemlTimecode struct {
	Rate          xmemlRate `xml:"rate"`
	String        string    `xml:"string"`
	Frame         int64     `xml:"frame"`
	DisplayFormat string    `xml:"displayformat"`
}

// xmemlFile is written in full once and as a bare id reference afterwards.
type xmemlFile struct {
	ID       string         `xml:"id,attr"`
	Name     string         `xml:"name,omitempty"`
	PathURL  string         `xml:"pathurl,omitempty"`
	Rate     *xmemlRate     `xml:"rate,omitempty"`
	Duration int64          `xml:"duration,omitempty"`
	Timecode *xmemlTimecode `xml:"timecode,omitempty"`
	Media    *fileMedia     `xml:"media,omitempty"`
}

type fileMedia struct {
	Video *mediaFormat `xml:"video,omitempty"`
	Audio *mediaFormat `xml:"audio,omitempty"`
}

type mediaFormat struct {
	SampleCharacteristics sampleCharacteristics `xml:"samplecharacteristics"`
}

type sampleCharacteristics struct {
	Rate             *xmemlRate `xml:"rate,omitempty"`
	Width            int        `xml:"width,omitempty"`
	Height           int        `xml:"height,omitempty"`
	PixelAspectRatio string     `xml:"pixelaspectratio,omitempty"`
	FieldDominance   string     `xml:"fielddominance,omitempty"`
	SampleRate       int        `xml:"samplerate,omitempty"`
	Depth            int        `xml:"depth,omitempty"`
}

type xmemlSequence struct {
	ID       string        `xml:"id,attr"`
	Name     string        `xml:"name"`
	Duration int64         `xml:"duration"`
	Rate     xmemlRate     `xml:"rate"`
	Timecode xmemlTimecode `xml:"timecode"`
	Media    sequenceMedia `xml:"media"`
	Markers  []xmemlMarker `xml:"marker"`
}

type sequenceMedia struct {
	Video videoTracks `xml:"video"`
	Audio audioTracks `xml:"audio"`
}

type videoTracks struct {
	Format mediaFormat  `xml:"format"`
	Tracks []xmemlTrack `xml:"track"`
}

type audioTracks struct {
	Tracks []xmemlTrack `xml:"track"`
}

type xmemlTrack struct {
	ClipItems []xmemlClipItem `xml:"clipitem"`
	Enabled   xmlBool         `xml:"enabled"`
	Locked    xmlBool         `xml:"locked"`
}

type xmemlClipItem struct {
	ID          string        `xml:"id,attr"`
	Name        string        `xml:"name"`
	Enabled     xmlBool       `xml:"enabled"`
	Duration    int64         `xml:"duration"`
	Rate        xmemlRate     `xml:"rate"`
	Start       int64         `xml:"start"`
	End         int64         `xml:"end"`
	In          int64         `xml:"in"`
	Out         int64         `xml:"out"`
	File        xmemlFile     `xml:"file"`
	SourceTrack sourceTrack   `xml:"sourcetrack"`
	Comments    *clipComments `xml:"comments,omitempty"`
	Links       []clipLink    `xml:"link"`
}

type sourceTrack struct {
	MediaType  string `xml:"mediatype"`
	TrackIndex int    `xml:"trackindex"`
}

type clipComments struct {
	MasterComment1 string `xml:"mastercomment1,omitempty"`
	MasterComment2 string `xml:"mastercomment2,omitempty"`
}

type clipLink struct {
	LinkClipRef string `xml:"linkclipref"`
	MediaType   string `xml:"mediatype"`
	TrackIndex  int    `xml:"trackindex"`
	ClipIndex   int    `xml:"clipindex"`
}

type xmemlMarker struct {
	Name    string `xml:"name"`
	Comment string `xml:"comment"`
	In      int64  `xml:"in"`
	Out     int64  `xml:"out"`
}

// MarshalXMEML renders tl as an FCP7 XML interchange document.
func MarshalXMEML(tl *Timeline) ([]byte, error) {
	body, err := xml.MarshalIndent(tl.document(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal xmeml: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(xmemlDoctype) + len(body) + 1)
	buf.WriteString(xml.Header)
	buf.WriteString(xmemlDoctype)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteXMEML marshals tl to path.
func WriteXMEML(path string, tl *Timeline) error {
	data, err := MarshalXMEML(tl)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	return nil
}

func (tl *Timeline) document() xmemlDoc {
	rate := xmemlRate{Timebase: tl.Profile.Timebase(), NTSC: xmlBool(tl.Profile.IsNTSC)}
	startTC := xmemlTimecode{
		Rate:          rate,
		String:        timecode.FormatSMPTE(0, tl.Profile),
		Frame:         0,
		DisplayFormat: tl.Profile.DisplayFormat(),
	}

	master := xmemlMasterClip{
		ID:       masterClipID,
		Name:     tl.Master.Name,
		Duration: tl.Master.DurationFrames,
		Rate:     rate,
		File: xmemlFile{
			ID:       masterFileID,
			Name:     tl.Master.Name,
			PathURL:  tl.Master.PathURL,
			Rate:     &rate,
			Duration: tl.Master.DurationFrames,
			Timecode: &startTC,
			Media: &fileMedia{
				Video: &mediaFormat{SampleCharacteristics: sampleCharacteristics{
					Width:  tl.Master.Width,
					Height: tl.Master.Height,
				}},
				Audio: &mediaFormat{SampleCharacteristics: sampleCharacteristics{
					SampleRate: audioRate,
					Depth:      audioDepth,
				}},
			},
		},
	}

	videoItems := make([]xmemlClipItem, 0, len(tl.Clips))
	audioItems := make([]xmemlClipItem, 0, len(tl.Clips))
	for _, c := range tl.Clips {
		videoID := fmt.Sprintf("clipitem-%d", c.Index)
		audioID := fmt.Sprintf("audioclip-%d", c.Index)
		links := []clipLink{
			{LinkClipRef: videoID, MediaType: "video", TrackIndex: 1, ClipIndex: c.Index},
			{LinkClipRef: audioID, MediaType: "audio", TrackIndex: 1, ClipIndex: c.Index},
		}

		item := xmemlClipItem{
			Name:     c.Name,
			Enabled:  true,
			Duration: c.Duration(),
			Rate:     rate,
			Start:    c.Start,
			End:      c.End,
			In:       c.In,
			Out:      c.Out,
			File:     xmemlFile{ID: masterFileID},
			Links:    links,
		}
		if c.Label != "" || c.Function != "" {
			item.Comments = &clipComments{
				MasterComment1: truncateText(c.Label),
				MasterComment2: truncateText(c.Function),
			}
		}

		v := item
		v.ID = videoID
		v.SourceTrack = sourceTrack{MediaType: "video", TrackIndex: 1}
		videoItems = append(videoItems, v)

		a := item
		a.ID = audioID
		a.SourceTrack = sourceTrack{MediaType: "audio", TrackIndex: 1}
		audioItems = append(audioItems, a)
	}

	markers := make([]xmemlMarker, 0, len(tl.Markers))
	for _, m := range tl.Markers {
		markers = append(markers, xmemlMarker{Name: m.Name, Comment: m.Comment, In: m.In, Out: m.Out})
	}

	seq := xmemlSequence{
		ID:       sequenceID,
		Name:     tl.SequenceName,
		Duration: tl.DurationFrames,
		Rate:     rate,
		Timecode: startTC,
		Media: sequenceMedia{
			Video: videoTracks{
				Format: mediaFormat{SampleCharacteristics: sampleCharacteristics{
					Rate:             &rate,
					Width:            tl.Master.Width,
					Height:           tl.Master.Height,
					PixelAspectRatio: pixelAspect,
					FieldDominance:   fieldDominance,
				}},
				Tracks: []xmemlTrack{{ClipItems: videoItems, Enabled: true}},
			},
			Audio: audioTracks{
				Tracks: []xmemlTrack{{ClipItems: audioItems, Enabled: true}},
			},
		},
		Markers: markers,
	}

	return xmemlDoc{
		Version: xmemlVersion,
		Project: xmemlProject{
			Name: tl.ProjectName,
			Children: projectChildren{
				Bins: []xmemlBin{{
					Name:     "Media",
					Children: binChildren{Clips: []xmemlMasterClip{master}},
				}},
				Sequences: []xmemlSequence{seq},
			},
		},
	}
}
