// Package graph compiles an editing timeline into an ffmpeg filter graph and
// the argument list that runs it.
//
// The compiler works on an in-memory model (stages with typed filters and
// labeled edges); String is the only place that knows ffmpeg's textual
// filtergraph syntax.
package graph

import (
	"strings"
)

// Fixed stream labels. The video chain always ends at LabelVideoOut and the
// audio chain, when present, at LabelAudioOut.
const (
	LabelBase      = "base"
	LabelVideoOut  = "vout"
	LabelOrigAudio = "aorig"
	LabelMusic     = "amusic"
	LabelAudioOut  = "aout"
)

// StageKind classifies a stage for inspection and tests
type StageKind string

const (
	KindBase          StageKind = "base"
	KindComposite     StageKind = "composite"
	KindPassthrough   StageKind = "passthrough"
	KindOriginalAudio StageKind = "original_audio"
	KindMusic         StageKind = "music"
	KindMix           StageKind = "mix"
	KindAudioRelabel  StageKind = "audio_relabel"
)

// Arg is one filter option. An empty Key makes it positional.
type Arg struct {
	Key   string
	Value string
}

// Filter is a single ffmpeg filter with ordered options
type Filter struct {
	Name string
	Args []Arg
}

func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		if a.Key == "" {
			parts = append(parts, a.Value)
		} else {
			parts = append(parts, a.Key+"="+a.Value)
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Stage consumes labeled streams, runs a linear filter chain and emits one label
type Stage struct {
	Kind   StageKind
	Inputs []string
	Chain  []Filter
	Output string
}

func (s Stage) String() string {
	var sb strings.Builder
	for _, in := range s.Inputs {
		sb.WriteString("[" + in + "]")
	}
	for i, f := range s.Chain {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.String())
	}
	sb.WriteString("[" + s.Output + "]")
	return sb.String()
}

// Graph is an ordered list of stages plus the terminal labels to map
type Graph struct {
	Stages []Stage

	// VideoOut is always LabelVideoOut.
	VideoOut string
	// AudioOut is LabelAudioOut, or empty when no audio source is selected.
	AudioOut string
}

// HasAudio reports whether the graph produces an audio output
func (g *Graph) HasAudio() bool {
	return g.AudioOut != ""
}

// StagesOf returns the stages of one kind in graph order
func (g *Graph) StagesOf(kind StageKind) []Stage {
	var out []Stage
	for _, s := range g.Stages {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Expressions returns each stage serialized, in order
func (g *Graph) Expressions() []string {
	out := make([]string, len(g.Stages))
	for i, s := range g.Stages {
		out[i] = s.String()
	}
	return out
}

// String serializes the whole graph as a -filter_complex value
func (g *Graph) String() string {
	return strings.Join(g.Expressions(), ";")
}
