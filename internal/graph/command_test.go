package graph

import (
	"strings"
	"testing"

	"github.com/kikiluvv/reelforge/internal/timeline"
)

func TestAssembleOriginalAudioOnly(t *testing.T) {
	g := compileTimeline(t, newTimeline(0, 10))

	args, err := Assemble(g, NewLayout(".MOV", 0, "", false), DefaultEncoding())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	want := []string{
		"-i", "input.mov",
		"-filter_complex", g.String(),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "20",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"output.mp4",
	}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("expected\n%q\ngot\n%q", want, args)
	}
}

func TestAssembleInputOrder(t *testing.T) {
	tl := withMusic(newTimeline(0, 10))
	tl.Overlays = []timeline.Overlay{
		{ID: "a", Start: 1, End: 2, FontSize: 64},
		{ID: "b", Start: 3, End: 4, FontSize: 64},
	}
	g := compileTimeline(t, tl)

	args, err := Assemble(g, NewLayout(".mp4", 2, "m4a", true), DefaultEncoding())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	var inputs []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	want := []string{"input.mp4", "overlay_0.png", "overlay_1.png", "music.m4a"}
	if strings.Join(inputs, ",") != strings.Join(want, ",") {
		t.Errorf("expected inputs %v, got %v", want, inputs)
	}
	if !strings.Contains(g.String(), "[3:a]aloop") {
		t.Errorf("music stage should read input 3: %s", g.String())
	}
}

func TestAssembleWithoutAudio(t *testing.T) {
	tl := newTimeline(0, 10)
	tl.Audio.UseOriginalAudio = false
	g := compileTimeline(t, tl)

	args, err := Assemble(g, NewLayout(".mp4", 0, "", false), DefaultEncoding())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, " -an ") {
		t.Errorf("expected -an in %q", joined)
	}
	if strings.Contains(joined, "[aout]") || strings.Contains(joined, "-c:a") {
		t.Errorf("audio should not be mapped or encoded: %q", joined)
	}
	if args[len(args)-1] != OutputName {
		t.Errorf("expected output %q last, got %q", OutputName, args[len(args)-1])
	}
}

func TestAssembleRejectsMismatchedLayout(t *testing.T) {
	tl := withMusic(newTimeline(0, 10))
	tl.Overlays = []timeline.Overlay{{ID: "a", Start: 1, End: 2, FontSize: 64}}
	g := compileTimeline(t, tl)

	if _, err := Assemble(g, NewLayout(".mp4", 0, ".mp3", true), DefaultEncoding()); err == nil {
		t.Error("expected error when overlay count does not match")
	}
	if _, err := Assemble(g, NewLayout(".mp4", 1, "", false), DefaultEncoding()); err == nil {
		t.Error("expected error when music is not staged")
	}
}

func TestAssembleCustomEncoding(t *testing.T) {
	g := compileTimeline(t, newTimeline(0, 10))

	args, err := Assemble(g, NewLayout(".mp4", 0, "", false), Encoding{Preset: "slow", CRF: 18, AudioBitrate: "128k"})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{"-preset slow", "-crf 18", "-b:a 128k", "-c:v libx264", "-pix_fmt yuv420p"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in %q", want, joined)
		}
	}
}

func TestAssembleDeterministic(t *testing.T) {
	tl := withMusic(newTimeline(2, 12))
	tl.Overlays = []timeline.Overlay{
		{ID: "a", Start: 2.5, End: 4.75, FontSize: 64},
		{ID: "b", Start: 0, End: 30, FontSize: 64},
	}

	build := func() string {
		g := compileTimeline(t, tl.Clone())
		args, err := Assemble(g, NewLayout(".mp4", len(g.StagesOf(KindComposite)), ".mp3", true), DefaultEncoding())
		if err != nil {
			t.Fatalf("assemble: %v", err)
		}
		return strings.Join(args, "\x00")
	}

	first := build()
	for i := 0; i < 3; i++ {
		if got := build(); got != first {
			t.Fatalf("assembly %d differs", i)
		}
	}
}

func TestFilterSerialization(t *testing.T) {
	tests := []struct {
		filter Filter
		want   string
	}{
		{Filter{Name: "null"}, "null"},
		{Filter{Name: "setpts", Args: []Arg{{Value: "PTS-STARTPTS"}}}, "setpts=PTS-STARTPTS"},
		{Filter{Name: "crop", Args: []Arg{{Value: "10"}, {Value: "20"}}}, "crop=10:20"},
		{Filter{Name: "amix", Args: []Arg{{Key: "inputs", Value: "2"}, {Key: "duration", Value: "shortest"}}}, "amix=inputs=2:duration=shortest"},
	}
	for _, tt := range tests {
		if got := tt.filter.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}
