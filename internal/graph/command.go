package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoding holds the fixed output encoder settings
type Encoding struct {
	VideoCodec   string
	Preset       string
	CRF          int
	PixFmt       string
	AudioCodec   string
	AudioBitrate string
}

// Default encoding settings
const (
	DefaultVideoCodec   = "libx264"
	DefaultPreset       = "veryfast"
	DefaultCRF          = 20
	DefaultPixFmt       = "yuv420p"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "192k"
)

// DefaultEncoding returns the stock H.264/AAC settings
func DefaultEncoding() Encoding {
	return Encoding{
		VideoCodec:   DefaultVideoCodec,
		Preset:       DefaultPreset,
		CRF:          DefaultCRF,
		PixFmt:       DefaultPixFmt,
		AudioCodec:   DefaultAudioCodec,
		AudioBitrate: DefaultAudioBitrate,
	}
}

// withDefaults fills zero fields so a partially configured Encoding stays usable
func (e Encoding) withDefaults() Encoding {
	d := DefaultEncoding()
	if e.VideoCodec == "" {
		e.VideoCodec = d.VideoCodec
	}
	if e.Preset == "" {
		e.Preset = d.Preset
	}
	if e.CRF <= 0 {
		e.CRF = d.CRF
	}
	if e.PixFmt == "" {
		e.PixFmt = d.PixFmt
	}
	if e.AudioCodec == "" {
		e.AudioCodec = d.AudioCodec
	}
	if e.AudioBitrate == "" {
		e.AudioBitrate = d.AudioBitrate
	}
	return e
}

// OutputName is the file the engine writes inside a job namespace
const OutputName = "output.mp4"

// Layout names the files staged for one job. Names are relative to the
// job's namespace so the same timeline always yields the same arguments.
type Layout struct {
	Source   string
	Overlays []string
	Music    string
	Output   string
}

// NewLayout applies the fixed naming convention. musicExt is ignored unless
// hasMusic is set.
func NewLayout(sourceExt string, overlayCount int, musicExt string, hasMusic bool) Layout {
	l := Layout{
		Source: "input" + normalizeExt(sourceExt, ".mp4"),
		Output: OutputName,
	}
	for i := 0; i < overlayCount; i++ {
		l.Overlays = append(l.Overlays, OverlayName(i))
	}
	if hasMusic {
		l.Music = "music" + normalizeExt(musicExt, ".mp3")
	}
	return l
}

// OverlayName is the staged file name of the i-th surviving overlay image
func OverlayName(i int) string {
	return "overlay_" + strconv.Itoa(i) + ".png"
}

// Inputs returns the input files in engine index order
func (l Layout) Inputs() []string {
	in := make([]string, 0, 2+len(l.Overlays))
	in = append(in, l.Source)
	in = append(in, l.Overlays...)
	if l.Music != "" {
		in = append(in, l.Music)
	}
	return in
}

// Assemble builds the full engine argument list for g. The caller must stage
// exactly len(layout.Overlays) images, matching the graph's composite stages.
func Assemble(g *Graph, layout Layout, enc Encoding) ([]string, error) {
	if n := len(g.StagesOf(KindComposite)); n != len(layout.Overlays) {
		return nil, fmt.Errorf("graph composites %d overlays but layout stages %d", n, len(layout.Overlays))
	}
	if len(g.StagesOf(KindMusic)) > 0 && layout.Music == "" {
		return nil, fmt.Errorf("graph uses music but no music input is staged")
	}

	enc = enc.withDefaults()

	var args []string
	for _, in := range layout.Inputs() {
		args = append(args, "-i", in)
	}

	args = append(args, "-filter_complex", g.String())
	args = append(args, "-map", "["+g.VideoOut+"]")
	if g.HasAudio() {
		args = append(args, "-map", "["+g.AudioOut+"]")
	}

	args = append(args,
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", strconv.Itoa(enc.CRF),
		"-pix_fmt", enc.PixFmt,
	)
	if g.HasAudio() {
		args = append(args, "-c:a", enc.AudioCodec, "-b:a", enc.AudioBitrate)
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-movflags", "+faststart")

	output := layout.Output
	if output == "" {
		output = OutputName
	}
	return append(args, output), nil
}

func normalizeExt(ext, fallback string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return fallback
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
