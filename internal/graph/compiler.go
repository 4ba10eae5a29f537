package graph

import (
	"fmt"
	"strconv"

	"github.com/kikiluvv/reelforge/internal/timeline"
	"github.com/kikiluvv/reelforge/pkg/util"
)

// DefaultDropoutTransition is the amix dropout transition in seconds
const DefaultDropoutTransition = 0.5

// Input is everything the compiler needs. Windows holds one entry per
// overlay image actually staged, in z-order; image i is engine input 1+i and
// the music, when present, comes right after the last image.
type Input struct {
	TrimStart float64
	TrimEnd   float64
	Width     int
	Height    int
	Grade     timeline.ColorGrade

	Windows []Window

	KeepOriginalAudio bool
	VideoVolume       float64
	HasMusic          bool
	MusicVolume       float64
	DropoutTransition float64
}

// NewInput builds compiler input from a timeline snapshot
func NewInput(tl timeline.Timeline, geo timeline.Geometry, windows []Window) Input {
	return Input{
		TrimStart:         tl.TrimStart,
		TrimEnd:           tl.TrimEnd,
		Width:             geo.Width,
		Height:            geo.Height,
		Grade:             tl.Grade,
		Windows:           windows,
		KeepOriginalAudio: tl.Audio.UseOriginalAudio,
		VideoVolume:       tl.Audio.VideoVolume,
		HasMusic:          tl.Audio.HasMusic(),
		MusicVolume:       tl.Audio.MusicVolume,
		DropoutTransition: DefaultDropoutTransition,
	}
}

// ClipDuration is the trimmed length in seconds
func (in Input) ClipDuration() float64 {
	return in.TrimEnd - in.TrimStart
}

// MusicInputIndex is the engine input index of the music track
func (in Input) MusicInputIndex() int {
	return 1 + len(in.Windows)
}

// Compile produces the filter graph for in. The result depends only on in.
func Compile(in Input) *Graph {
	g := &Graph{VideoOut: LabelVideoOut}

	g.Stages = append(g.Stages, baseStage(in))
	g.Stages = append(g.Stages, compositeStages(in.Windows)...)

	audio, out := audioStages(in)
	g.Stages = append(g.Stages, audio...)
	g.AudioOut = out

	return g
}

func baseStage(in Input) Stage {
	return Stage{
		Kind:   KindBase,
		Inputs: []string{"0:v"},
		Chain: []Filter{
			trimFilter("trim", in.TrimStart, in.TrimEnd),
			{Name: "setpts", Args: []Arg{{Value: "PTS-STARTPTS"}}},
			{Name: "scale", Args: []Arg{
				{Value: strconv.Itoa(in.Width)},
				{Value: strconv.Itoa(in.Height)},
				{Key: "force_original_aspect_ratio", Value: "increase"},
			}},
			{Name: "crop", Args: []Arg{
				{Value: strconv.Itoa(in.Width)},
				{Value: strconv.Itoa(in.Height)},
			}},
			{Name: "eq", Args: []Arg{
				{Key: "brightness", Value: formatLevel(in.Grade.Brightness)},
				{Key: "contrast", Value: formatLevel(in.Grade.Contrast)},
				{Key: "saturation", Value: formatLevel(in.Grade.Saturation)},
			}},
		},
		Output: LabelBase,
	}
}

// compositeStages chains one overlay stage per window. Intermediate labels
// are v1..vN-1; the last stage writes LabelVideoOut. With no windows a null
// stage relabels the base so the graph always ends at LabelVideoOut.
func compositeStages(windows []Window) []Stage {
	if len(windows) == 0 {
		return []Stage{{
			Kind:   KindPassthrough,
			Inputs: []string{LabelBase},
			Chain:  []Filter{{Name: "null"}},
			Output: LabelVideoOut,
		}}
	}

	stages := make([]Stage, 0, len(windows))
	prev := LabelBase
	for i, w := range windows {
		out := fmt.Sprintf("v%d", i+1)
		if i == len(windows)-1 {
			out = LabelVideoOut
		}
		stages = append(stages, Stage{
			Kind:   KindComposite,
			Inputs: []string{prev, fmt.Sprintf("%d:v", i+1)},
			Chain: []Filter{{Name: "overlay", Args: []Arg{
				{Value: "0"},
				{Value: "0"},
				{Key: "enable", Value: EnableExpr(w)},
			}}},
			Output: out,
		})
		prev = out
	}
	return stages
}

// EnableExpr is the quoted time gate for a window
func EnableExpr(w Window) string {
	return fmt.Sprintf("'between(t,%s,%s)'", util.FormatSeconds(w.Start), util.FormatSeconds(w.End))
}

func audioStages(in Input) ([]Stage, string) {
	var stages []Stage
	var labels []string

	if in.KeepOriginalAudio {
		stages = append(stages, Stage{
			Kind:   KindOriginalAudio,
			Inputs: []string{"0:a"},
			Chain: []Filter{
				trimFilter("atrim", in.TrimStart, in.TrimEnd),
				{Name: "asetpts", Args: []Arg{{Value: "PTS-STARTPTS"}}},
				volumeFilter(in.VideoVolume),
			},
			Output: LabelOrigAudio,
		})
		labels = append(labels, LabelOrigAudio)
	}

	if in.HasMusic {
		// loop before trimming so short tracks still cover the whole clip
		stages = append(stages, Stage{
			Kind:   KindMusic,
			Inputs: []string{fmt.Sprintf("%d:a", in.MusicInputIndex())},
			Chain: []Filter{
				{Name: "aloop", Args: []Arg{
					{Key: "loop", Value: "-1"},
					{Key: "size", Value: "2147483647"},
				}},
				trimFilter("atrim", 0, in.ClipDuration()),
				{Name: "asetpts", Args: []Arg{{Value: "PTS-STARTPTS"}}},
				volumeFilter(in.MusicVolume),
			},
			Output: LabelMusic,
		})
		labels = append(labels, LabelMusic)
	}

	switch len(labels) {
	case 0:
		return stages, ""
	case 1:
		stages = append(stages, Stage{
			Kind:   KindAudioRelabel,
			Inputs: labels,
			Chain:  []Filter{{Name: "anull"}},
			Output: LabelAudioOut,
		})
	default:
		dropout := in.DropoutTransition
		if dropout < 0 {
			dropout = 0
		}
		stages = append(stages, Stage{
			Kind:   KindMix,
			Inputs: labels,
			Chain: []Filter{{Name: "amix", Args: []Arg{
				{Key: "inputs", Value: strconv.Itoa(len(labels))},
				{Key: "duration", Value: "shortest"},
				{Key: "dropout_transition", Value: strconv.FormatFloat(dropout, 'f', -1, 64)},
			}}},
			Output: LabelAudioOut,
		})
	}
	return stages, LabelAudioOut
}

func trimFilter(name string, start, end float64) Filter {
	return Filter{Name: name, Args: []Arg{
		{Key: "start", Value: util.FormatSeconds(start)},
		{Key: "end", Value: util.FormatSeconds(end)},
	}}
}

func volumeFilter(v float64) Filter {
	return Filter{Name: "volume", Args: []Arg{{Value: formatLevel(v)}}}
}

// formatLevel writes a gain or grade value at full precision
func formatLevel(v float64) string {
	if v == 0 {
		// avoid "-0"
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
