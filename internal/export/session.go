// Package export drives one editing session's exports: it validates the
// request, stages every input into the engine, runs the compiled command and
// publishes the result while tracking the job state machine.
package export

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/reelforge/internal/ffmpeg"
	"github.com/kikiluvv/reelforge/internal/graph"
	"github.com/kikiluvv/reelforge/internal/logging"
	"github.com/kikiluvv/reelforge/internal/overlays"
	"github.com/kikiluvv/reelforge/internal/timeline"
)

// Options configures a Session
type Options struct {
	Encoding          graph.Encoding
	DropoutTransition float64
	Progress          ProgressFunc
}

// DefaultOptions returns the stock encoder settings
func DefaultOptions() Options {
	return Options{
		Encoding:          graph.DefaultEncoding(),
		DropoutTransition: graph.DefaultDropoutTransition,
	}
}

// EngineFactory creates the engine on first use
type EngineFactory func() ffmpeg.Engine

// Session owns the source video, the lazily created engine and the current
// job. Export may be called from any goroutine but only one runs at a time;
// a second request while one is loading is rejected.
type Session struct {
	logger     zerolog.Logger
	opts       Options
	rasterizer *overlays.Rasterizer
	newEngine  EngineFactory

	mu        sync.Mutex
	source    *Source
	job       Job
	published *Output
	// closes counts Close calls; a job started before a Close never publishes
	closes int

	// engineMu guards the engine and is held for a whole job, which keeps
	// invocations strictly serialized
	engineMu     sync.Mutex
	engine       ffmpeg.Engine
	engineLoaded bool
}

// NewSession creates an idle session
func NewSession(logger zerolog.Logger, newEngine EngineFactory, rasterizer *overlays.Rasterizer, opts Options) *Session {
	return &Session{
		logger:     logger.With().Str("component", "export").Logger(),
		opts:       opts,
		rasterizer: rasterizer,
		newEngine:  newEngine,
		job:        Job{Status: StatusIdle},
	}
}

// SetSource replaces the primary video. The current job is reset to idle and
// its published output released.
func (s *Session) SetSource(src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job.Status == StatusLoading {
		return ErrExportInProgress
	}

	s.source = &src
	s.releasePublishedLocked()
	s.job = Job{Status: StatusIdle}

	s.logger.Info().
		Str("source", src.Name).
		Float64("duration", src.Duration).
		Msg("source changed")
	return nil
}

// Job returns a snapshot of the current job
func (s *Session) Job() Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Export renders tl against the current source. Validation failures return
// before any job exists. Engine failures move the job to StatusError and are
// returned as well.
func (s *Session) Export(ctx context.Context, tl timeline.Timeline) (Job, error) {
	s.mu.Lock()
	if s.job.Status == StatusLoading {
		s.mu.Unlock()
		return Job{}, ErrExportInProgress
	}
	src, geo, err := s.validateLocked(tl)
	if err != nil {
		s.mu.Unlock()
		return Job{}, err
	}

	snapshot := tl.Clone()
	snapshot.Clamp()

	s.job = Job{
		ID:        uuid.NewString(),
		Status:    StatusLoading,
		Phase:     PhaseInitializing,
		StartedAt: time.Now(),
	}
	jobID := s.job.ID
	gen := s.closes
	s.mu.Unlock()

	logger := logging.WithJob(s.logger, jobID)
	logger.Info().
		Float64("trim_start", snapshot.TrimStart).
		Float64("trim_end", snapshot.TrimEnd).
		Str("geometry", geo.Name).
		Int("overlays", len(snapshot.Overlays)).
		Bool("music", snapshot.Audio.HasMusic()).
		Msg("export started")
	s.report(Progress{JobID: jobID, Phase: PhaseInitializing})

	data, skipped, runErr := s.run(ctx, logger, jobID, src, snapshot, geo)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closes != gen {
		s.job = Job{Status: StatusIdle}
		logger.Info().Msg("session closed during export, result dropped")
		return s.snapshotLocked(), ErrSessionClosed
	}

	s.job.Skipped = skipped
	s.job.Phase = PhaseNone
	s.job.FinishedAt = time.Now()

	if runErr != nil {
		s.job.Status = StatusError
		s.job.ErrorDetail = runErr.Error()
		logger.Error().Err(runErr).Msg("export failed")
		return s.snapshotLocked(), runErr
	}

	s.releasePublishedLocked()
	s.published = newOutput(uuid.NewString(), jobID, data)
	s.job.Output = s.published
	s.job.Status = StatusReady

	logger.Info().
		Int("bytes", len(data)).
		Int("skipped_overlays", len(skipped)).
		Dur("elapsed", s.job.FinishedAt.Sub(s.job.StartedAt)).
		Msg("export complete")
	return s.snapshotLocked(), nil
}

// Close releases the published output and the engine. An export still
// running finishes against the old engine and returns ErrSessionClosed
// without publishing. The session may be used again afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	s.releasePublishedLocked()
	if s.job.Status != StatusLoading {
		s.job = Job{Status: StatusIdle}
	}
	s.mu.Unlock()

	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	s.engineLoaded = false
	if err != nil {
		return fmt.Errorf("failed to close engine: %w", err)
	}
	return nil
}

func (s *Session) validateLocked(tl timeline.Timeline) (Source, timeline.Geometry, error) {
	if s.source == nil || len(s.source.Data) == 0 {
		return Source{}, timeline.Geometry{}, ErrNoSource
	}
	src := *s.source

	if src.Duration <= 0 || math.IsNaN(src.Duration) || math.IsInf(src.Duration, 0) {
		return Source{}, timeline.Geometry{}, ErrUnknownDuration
	}
	if tl.ClipDuration() <= timeline.MinClipLength {
		return Source{}, timeline.Geometry{}, fmt.Errorf("%w: %.2fs", ErrClipTooShort, tl.ClipDuration())
	}
	if err := tl.Validate(src.Duration); err != nil {
		return Source{}, timeline.Geometry{}, err
	}

	geo, err := timeline.Lookup(tl.Geometry)
	if err != nil {
		return Source{}, timeline.Geometry{}, err
	}
	return src, geo, nil
}

// run performs the engine work for one job while holding engineMu
func (s *Session) run(ctx context.Context, logger zerolog.Logger, jobID string, src Source, tl timeline.Timeline, geo timeline.Geometry) ([]byte, []SkippedOverlay, error) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	engine, err := s.acquireEngineLocked(ctx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("engine initialization failed: %w", err)
	}

	s.setPhase(PhaseProcessing)
	s.report(Progress{JobID: jobID, Phase: PhaseProcessing})

	// rasterize only what survives the trim
	placements := graph.NormalizeOverlays(tl)
	images, windows, skipped, err := s.rasterize(ctx, logger, placements, geo)
	if err != nil {
		return nil, skipped, err
	}

	in := graph.NewInput(tl, geo, windows)
	in.DropoutTransition = s.opts.DropoutTransition
	g := graph.Compile(in)

	var musicExt string
	if tl.Audio.HasMusic() {
		musicExt = tl.Audio.Music.Ext
	}
	layout := graph.NewLayout(src.Ext, len(images), musicExt, tl.Audio.HasMusic())
	args, err := graph.Assemble(g, layout, s.opts.Encoding)
	if err != nil {
		return nil, skipped, fmt.Errorf("failed to assemble command: %w", err)
	}

	ns := jobID
	defer func() {
		if err := engine.RemoveNamespace(ns); err != nil {
			logger.Warn().Err(err).Msg("failed to remove staged files")
		}
	}()

	if err := engine.WriteFile(ctx, ns, layout.Source, src.Data); err != nil {
		return nil, skipped, fmt.Errorf("failed to stage source: %w", err)
	}
	for i, img := range images {
		if err := engine.WriteFile(ctx, ns, layout.Overlays[i], img); err != nil {
			return nil, skipped, fmt.Errorf("failed to stage overlay: %w", err)
		}
	}
	if layout.Music != "" {
		if err := engine.WriteFile(ctx, ns, layout.Music, tl.Audio.Music.Data); err != nil {
			return nil, skipped, fmt.Errorf("failed to stage music: %w", err)
		}
	}

	logger.Info().
		Int("inputs", len(layout.Inputs())).
		Str("filter_complex", g.String()).
		Msg("invoking engine")

	clip := tl.ClipDuration()
	err = engine.Exec(ctx, ns, args, func(p *ffmpeg.Progress) {
		s.report(Progress{JobID: jobID, Phase: PhaseProcessing, Percent: percent(p.OutTime, clip)})
	})
	if err != nil {
		return nil, skipped, fmt.Errorf("engine invocation failed: %w", err)
	}

	data, err := engine.ReadFile(ctx, ns, layout.Output)
	if err != nil {
		return nil, skipped, fmt.Errorf("failed to retrieve output: %w", err)
	}
	if len(data) == 0 {
		return nil, skipped, fmt.Errorf("engine produced an empty output")
	}

	s.report(Progress{JobID: jobID, Phase: PhaseProcessing, Percent: 100})
	return data, skipped, nil
}

// acquireEngineLocked creates the engine once and loads it. A failed load is
// retried on the next export; the instance itself is kept.
func (s *Session) acquireEngineLocked(ctx context.Context, logger zerolog.Logger) (ffmpeg.Engine, error) {
	if s.engine == nil {
		s.engine = s.newEngine()
	}
	if s.engineLoaded {
		return s.engine, nil
	}

	start := time.Now()
	if err := s.engine.Load(ctx); err != nil {
		return nil, err
	}
	s.engineLoaded = true

	logger.Info().Dur("elapsed", time.Since(start)).Msg("engine ready")
	return s.engine, nil
}

// rasterize renders placements and keeps the successes in z-order
func (s *Session) rasterize(ctx context.Context, logger zerolog.Logger, placements []graph.Placement, geo timeline.Geometry) ([][]byte, []graph.Window, []SkippedOverlay, error) {
	if len(placements) == 0 {
		return nil, nil, nil, nil
	}

	list := make([]timeline.Overlay, len(placements))
	for i, p := range placements {
		list[i] = p.Overlay
	}

	results, err := s.rasterizer.RasterizeAll(ctx, list, geo)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to rasterize overlays: %w", err)
	}

	var (
		images  [][]byte
		windows []graph.Window
		skipped []SkippedOverlay
	)
	for i, r := range results {
		if !r.OK() {
			reason := "empty image"
			if r.Err != nil {
				reason = r.Err.Error()
			}
			skipped = append(skipped, SkippedOverlay{OverlayID: r.OverlayID, Reason: reason})
			continue
		}
		images = append(images, r.PNG)
		windows = append(windows, placements[i].Window)
	}

	logger.Debug().
		Int("rendered", len(images)).
		Int("skipped", len(skipped)).
		Msg("overlays rasterized")
	return images, windows, skipped, nil
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.Status == StatusLoading {
		s.job.Phase = p
	}
}

func (s *Session) report(p Progress) {
	if s.opts.Progress != nil {
		s.opts.Progress(p)
	}
}

func (s *Session) releasePublishedLocked() {
	if s.published == nil {
		return
	}
	s.published.release()
	s.logger.Debug().Str("output_id", s.published.ID).Msg("released output")
	s.published = nil
}

func (s *Session) snapshotLocked() Job {
	j := s.job
	if j.Skipped != nil {
		j.Skipped = append([]SkippedOverlay(nil), j.Skipped...)
	}
	return j
}

func percent(done, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Min(100, math.Max(0, done/total*100))
}
