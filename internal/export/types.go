package export

import (
	"errors"
	"sync"
	"time"

	"github.com/kikiluvv/reelforge/internal/timeline"
)

// Validation errors. They are returned before a job is created.
var (
	ErrNoSource         = errors.New("no source video loaded")
	ErrUnknownDuration  = errors.New("source duration is unknown")
	ErrClipTooShort     = timeline.ErrClipTooShort
	ErrExportInProgress = errors.New("an export is already in progress")
)

// ErrSessionClosed is returned by an export whose session was closed while it ran
var ErrSessionClosed = errors.New("session closed during export")

// Status is the top-level job state
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Phase refines StatusLoading for progress messages
type Phase string

const (
	PhaseNone         Phase = ""
	PhaseInitializing Phase = "initializing"
	PhaseProcessing   Phase = "processing"
)

// Source is the primary video held by the session
type Source struct {
	Name string
	// Ext is the container extension, e.g. ".mp4"
	Ext      string
	Data     []byte
	Duration float64
}

// Output is a published export result. Its bytes stay readable until the
// session releases it.
type Output struct {
	ID        string
	JobID     string
	Size      int
	CreatedAt time.Time

	mu       sync.Mutex
	data     []byte
	released bool
}

func newOutput(id, jobID string, data []byte) *Output {
	return &Output{
		ID:        id,
		JobID:     jobID,
		Size:      len(data),
		CreatedAt: time.Now(),
		data:      data,
	}
}

// Bytes returns the encoded video; ok is false once released
func (o *Output) Bytes() (data []byte, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return nil, false
	}
	return o.data, true
}

// Released reports whether the output was released
func (o *Output) Released() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}

func (o *Output) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data = nil
	o.released = true
}

// SkippedOverlay records an overlay left out of the export
type SkippedOverlay struct {
	OverlayID string
	Reason    string
}

// Job is a snapshot of the current export
type Job struct {
	ID     string
	Status Status
	Phase  Phase

	Output      *Output
	ErrorDetail string

	// Skipped lists overlays that failed to rasterize
	Skipped []SkippedOverlay

	StartedAt  time.Time
	FinishedAt time.Time
}

// Progress is reported while a job is loading
type Progress struct {
	JobID string
	Phase Phase
	// Percent is 0-100 during processing, 0 while initializing
	Percent float64
}

// ProgressFunc receives progress updates
type ProgressFunc func(Progress)
