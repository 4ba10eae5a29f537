package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/reelforge/internal/export"
	"github.com/kikiluvv/reelforge/internal/ffmpeg"
	"github.com/kikiluvv/reelforge/internal/timeline"
	"github.com/kikiluvv/reelforge/pkg/util"
)

// loadSource probes and reads the source video into memory
func loadSource(ctx context.Context, path string) (export.Source, ffmpeg.SourceInfo, error) {
	if !util.FileExists(path) {
		return export.Source{}, ffmpeg.SourceInfo{}, fmt.Errorf("input not found: %s", path)
	}

	info, err := ffmpeg.ProbeSource(ctx, path)
	if err != nil {
		return export.Source{}, ffmpeg.SourceInfo{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return export.Source{}, ffmpeg.SourceInfo{}, fmt.Errorf("failed to read input: %w", err)
	}

	log.Info().
		Str("input", path).
		Str("duration", util.FormatDuration(time.Duration(info.Duration*float64(time.Second)))).
		Int("width", info.Width).
		Int("height", info.Height).
		Bool("audio", info.HasAudio).
		Msg("source loaded")

	return export.Source{
		Name:     filepath.Base(path),
		Ext:      util.GetExtension(path),
		Data:     data,
		Duration: info.Duration,
	}, *info, nil
}

// buildTimeline reads the timeline file (if any) over a full-length default
// and applies the command-line overrides.
func buildTimeline(f timelineFlags, duration float64) (*timeline.Timeline, error) {
	tl := timeline.New(duration)

	if f.timeline != "" {
		data, err := os.ReadFile(f.timeline)
		if err != nil {
			return nil, fmt.Errorf("failed to read timeline: %w", err)
		}
		if err := yaml.Unmarshal(data, tl); err != nil {
			return nil, fmt.Errorf("failed to parse timeline: %w", err)
		}
	}
	if f.geometry != "" {
		tl.Geometry = f.geometry
	}

	editor := timeline.NewEditor(tl, duration)
	if f.start != "" || f.end != "" {
		start, end := tl.TrimStart, tl.TrimEnd
		if f.start != "" {
			d, err := util.ParseTimestamp(f.start)
			if err != nil {
				return nil, fmt.Errorf("invalid --start: %w", err)
			}
			start = d.Seconds()
		}
		if f.end != "" {
			d, err := util.ParseTimestamp(f.end)
			if err != nil {
				return nil, fmt.Errorf("invalid --end: %w", err)
			}
			end = d.Seconds()
		}
		if err := editor.SetTrim(start, end); err != nil {
			return nil, err
		}
	}

	for i := range tl.Overlays {
		fillOverlayDefaults(&tl.Overlays[i])
	}

	if f.music != "" {
		data, err := os.ReadFile(f.music)
		if err != nil {
			return nil, fmt.Errorf("failed to read music: %w", err)
		}
		tl.Audio.Music = &timeline.AudioAsset{
			Name: filepath.Base(f.music),
			Ext:  util.GetExtension(f.music),
			Data: data,
		}
	}

	return tl, nil
}

func fillOverlayDefaults(o *timeline.Overlay) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Color == "" {
		o.Color = "#FFFFFF"
	}
	if o.FontSize == 0 {
		o.FontSize = 64
	}
	if o.Weight == "" {
		o.Weight = timeline.WeightBold
	}
}

// progressLogger logs phase changes and every tenth percent of encoding
func progressLogger() export.ProgressFunc {
	var (
		lastPhase export.Phase
		lastStep  = -1
	)
	return func(p export.Progress) {
		if p.Phase != lastPhase {
			lastPhase = p.Phase
			lastStep = -1
			log.Info().Str("job", p.JobID).Str("phase", string(p.Phase)).Msg("export phase")
		}
		step := int(p.Percent / 10)
		if p.Phase == export.PhaseProcessing && step > lastStep {
			lastStep = step
			log.Info().Str("job", p.JobID).Msgf("encoding %.0f%%", p.Percent)
		}
	}
}

// shellJoin quotes args that contain shell metacharacters
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " []:;,='\"$*?&|<>()") {
			quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
			continue
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
