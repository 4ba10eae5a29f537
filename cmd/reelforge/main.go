package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/reelforge/internal/config"
	"github.com/kikiluvv/reelforge/internal/export"
	"github.com/kikiluvv/reelforge/internal/ffmpeg"
	"github.com/kikiluvv/reelforge/internal/graph"
	"github.com/kikiluvv/reelforge/internal/logging"
	"github.com/kikiluvv/reelforge/internal/overlays"
	"github.com/kikiluvv/reelforge/internal/timeline"
	"github.com/kikiluvv/reelforge/pkg/util"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reelforge",
	Short: "reelforge - short-form video export compiler",
	Long:  "Trims, reframes, grades and captions a source clip, mixes in music and exports a single MP4 through ffmpeg.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Initialize logging
		logging.InitLevel(verbose, cfg.LogLevel)

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./reelforge.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(configCmd)
}

// flags shared by export and graph
type timelineFlags struct {
	input    string
	timeline string
	music    string
	geometry string
	start    string
	end      string
}

func (f *timelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "source video")
	cmd.Flags().StringVarP(&f.timeline, "timeline", "t", "", "timeline YAML file")
	cmd.Flags().StringVarP(&f.music, "music", "m", "", "background music file")
	cmd.Flags().StringVarP(&f.geometry, "geometry", "g", "", "frame preset (portrait, square, landscape)")
	cmd.Flags().StringVar(&f.start, "start", "", "trim start (SS, MM:SS or HH:MM:SS)")
	cmd.Flags().StringVar(&f.end, "end", "", "trim end (SS, MM:SS or HH:MM:SS)")
}

var (
	exportFlags timelineFlags
	outputPath  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a timeline to an MP4",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		if exportFlags.input == "" {
			return fmt.Errorf("--input is required")
		}

		src, info, err := loadSource(ctx, exportFlags.input)
		if err != nil {
			return err
		}

		tl, err := buildTimeline(exportFlags, info.Duration)
		if err != nil {
			return err
		}
		if !info.HasAudio && tl.Audio.UseOriginalAudio {
			log.Warn().Str("input", exportFlags.input).Msg("source has no audio stream, original audio disabled")
			tl.Audio.UseOriginalAudio = false
		}

		rasterizer, err := overlays.New(logging.WithComponent("overlays"), overlays.Options{
			FontRegular: cfg.Overlays.FontRegular,
			FontBold:    cfg.Overlays.FontBold,
			Supersample: cfg.Overlays.Supersample,
			Concurrency: cfg.Concurrency,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize rasterizer: %w", err)
		}

		opts := export.Options{
			Encoding:          cfg.Encoding(),
			DropoutTransition: cfg.Audio.DropoutTransition,
			Progress:          progressLogger(),
		}
		session := export.NewSession(log.Logger, func() ffmpeg.Engine {
			return ffmpeg.NewLocalEngine(log.Logger, ffmpeg.EngineOptions{
				WorkDir: cfg.WorkDir,
				Binary:  cfg.FFmpeg.BinaryPath,
				Threads: cfg.FFmpeg.Threads,
			})
		}, rasterizer, opts)
		defer session.Close()

		if err := session.SetSource(src); err != nil {
			return err
		}

		job, err := session.Export(ctx, *tl)
		if err != nil {
			return err
		}
		for _, s := range job.Skipped {
			log.Warn().Str("overlay_id", s.OverlayID).Str("reason", s.Reason).Msg("overlay left out")
		}

		if job.Output == nil {
			return fmt.Errorf("export finished without output")
		}
		data, ok := job.Output.Bytes()
		if !ok {
			return fmt.Errorf("export output was released before it could be saved")
		}

		out := outputPath
		if out == "" {
			base := strings.TrimSuffix(filepath.Base(exportFlags.input), filepath.Ext(exportFlags.input))
			out = base + "_" + tl.Geometry + ".mp4"
		}
		if err := util.EnsureDir(filepath.Dir(out)); err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			util.CleanupFiles(out)
			return fmt.Errorf("failed to write output: %w", err)
		}

		log.Info().
			Str("output", out).
			Int("bytes", len(data)).
			Str("job", job.ID).
			Msg("export saved")
		return nil
	},
}

var (
	graphFlags    timelineFlags
	graphDuration float64
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the ffmpeg arguments for a timeline without running them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		duration := graphDuration
		sourceExt := ".mp4"
		if graphFlags.input != "" {
			info, err := ffmpeg.ProbeSource(ctx, graphFlags.input)
			if err != nil {
				return err
			}
			duration = info.Duration
			sourceExt = util.GetExtension(graphFlags.input)
		}
		if duration <= 0 {
			return fmt.Errorf("source duration unknown: pass --input or --duration")
		}

		tl, err := buildTimeline(graphFlags, duration)
		if err != nil {
			return err
		}
		if err := tl.Validate(duration); err != nil {
			return err
		}
		tl.Clamp()

		geo, err := timeline.Lookup(tl.Geometry)
		if err != nil {
			return err
		}

		placements := graph.NormalizeOverlays(*tl)
		windows := make([]graph.Window, len(placements))
		for i, p := range placements {
			windows[i] = p.Window
		}

		in := graph.NewInput(*tl, geo, windows)
		in.DropoutTransition = cfg.Audio.DropoutTransition
		g := graph.Compile(in)

		var musicExt string
		if tl.Audio.HasMusic() {
			musicExt = tl.Audio.Music.Ext
		}
		argv, err := graph.Assemble(g, graph.NewLayout(sourceExt, len(windows), musicExt, tl.Audio.HasMusic()), cfg.Encoding())
		if err != nil {
			return err
		}

		fmt.Println("ffmpeg " + shellJoin(argv))
		return nil
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List frame geometry presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range timeline.PresetNames() {
			geo, _ := timeline.Lookup(name)
			fmt.Println(geo.String())
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "reelforge.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	exportFlags.register(exportCmd)
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: <input>_<geometry>.mp4)")

	graphFlags.register(graphCmd)
	graphCmd.Flags().Float64Var(&graphDuration, "duration", 0, "source duration in seconds when --input is not given")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
