package timeline

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

const (
	// MinClipLength is the shortest trimmed clip that may be exported, in seconds.
	MinClipLength = 0.5

	// DefaultOverlayDuration is the window given to a freshly added overlay.
	DefaultOverlayDuration = 3.0

	// ReferenceWidth is the frame width overlay font sizes are expressed against.
	ReferenceWidth = 1080
)

// Parameter ranges exposed by the editing UI.
const (
	MinBrightness = -0.5
	MaxBrightness = 0.5
	MinContrast   = 0.5
	MaxContrast   = 1.8
	MinSaturation = 0.2
	MaxSaturation = 2.0
	MinVolume     = 0.0
	MaxVolume     = 1.5
)

var (
	// ErrClipTooShort is returned when the trimmed window is not longer than MinClipLength.
	ErrClipTooShort = errors.New("trimmed clip is too short")

	// ErrInvalidTrim is returned when trim bounds are out of order or outside the source.
	ErrInvalidTrim = errors.New("invalid trim window")
)

// Weight is the overlay font weight
type Weight string

const (
	WeightRegular Weight = "regular"
	WeightBold    Weight = "bold"
)

// Overlay is one timed caption drawn over the clip
type Overlay struct {
	ID    string  `yaml:"id"`
	Text  string  `yaml:"text"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`

	Color      string  `yaml:"color"`
	Background string  `yaml:"background,omitempty"`
	FontSize   float64 `yaml:"font_size"`
	Weight     Weight  `yaml:"weight"`

	// X and Y are percentages of the frame (0-100) locating the caption center.
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`

	BackgroundOpacity float64 `yaml:"background_opacity"`
}

// ColorGrade holds the three linear adjustments applied to the base video
type ColorGrade struct {
	Brightness float64 `yaml:"brightness"`
	Contrast   float64 `yaml:"contrast"`
	Saturation float64 `yaml:"saturation"`
}

// DefaultColorGrade is the neutral grade
func DefaultColorGrade() ColorGrade {
	return ColorGrade{Brightness: 0, Contrast: 1, Saturation: 1}
}

// AudioAsset is an uploaded music file. Ext carries the container extension
// (".mp3", ".m4a", ...) since the engine picks a demuxer from it.
type AudioAsset struct {
	Name string
	Ext  string
	Data []byte
}

// AudioMix configures which audio sources end up in the export
type AudioMix struct {
	UseOriginalAudio bool        `yaml:"use_original_audio"`
	VideoVolume      float64     `yaml:"video_volume"`
	Music            *AudioAsset `yaml:"-"`
	MusicVolume      float64     `yaml:"music_volume"`
}

// HasMusic reports whether a music asset is attached
func (a AudioMix) HasMusic() bool {
	return a.Music != nil && len(a.Music.Data) > 0
}

// Timeline is the editing state read by an export
type Timeline struct {
	TrimStart float64    `yaml:"trim_start"`
	TrimEnd   float64    `yaml:"trim_end"`
	Geometry  string     `yaml:"geometry"`
	Grade     ColorGrade `yaml:"color_grade"`
	Overlays  []Overlay  `yaml:"overlays"`
	Audio     AudioMix   `yaml:"audio"`
}

// New returns a timeline spanning the whole source with neutral settings
func New(sourceDuration float64) *Timeline {
	return &Timeline{
		TrimStart: 0,
		TrimEnd:   sourceDuration,
		Geometry:  PresetPortrait,
		Grade:     DefaultColorGrade(),
		Audio: AudioMix{
			UseOriginalAudio: true,
			VideoVolume:      1,
			MusicVolume:      0.6,
		},
	}
}

// ClipDuration is the length of the trimmed window in seconds
func (t Timeline) ClipDuration() float64 {
	return t.TrimEnd - t.TrimStart
}

// Clone returns a snapshot that shares no mutable state with t.
// The music bytes are shared; they are never mutated in place.
func (t Timeline) Clone() Timeline {
	c := t
	c.Overlays = slices.Clone(t.Overlays)
	if t.Audio.Music != nil {
		m := *t.Audio.Music
		c.Audio.Music = &m
	}
	return c
}

// Clamp forces every parameter into its documented range
func (t *Timeline) Clamp() {
	t.Grade.Brightness = clamp(t.Grade.Brightness, MinBrightness, MaxBrightness)
	t.Grade.Contrast = clamp(t.Grade.Contrast, MinContrast, MaxContrast)
	t.Grade.Saturation = clamp(t.Grade.Saturation, MinSaturation, MaxSaturation)
	t.Audio.VideoVolume = clamp(t.Audio.VideoVolume, MinVolume, MaxVolume)
	t.Audio.MusicVolume = clamp(t.Audio.MusicVolume, MinVolume, MaxVolume)

	for i := range t.Overlays {
		o := &t.Overlays[i]
		o.X = clamp(o.X, 0, 100)
		o.Y = clamp(o.Y, 0, 100)
		o.BackgroundOpacity = clamp(o.BackgroundOpacity, 0, 1)
		if o.Weight != WeightBold {
			o.Weight = WeightRegular
		}
	}
}

// Validate checks the timeline against the source duration.
// A non-positive sourceDuration skips the upper trim bound check.
func (t Timeline) Validate(sourceDuration float64) error {
	if t.TrimStart < 0 || t.TrimEnd <= t.TrimStart {
		return fmt.Errorf("%w: start=%.2f end=%.2f", ErrInvalidTrim, t.TrimStart, t.TrimEnd)
	}
	if sourceDuration > 0 && t.TrimEnd > sourceDuration+1e-6 {
		return fmt.Errorf("%w: end %.2f exceeds source duration %.2f", ErrInvalidTrim, t.TrimEnd, sourceDuration)
	}
	if t.ClipDuration() < MinClipLength {
		return fmt.Errorf("%w: %.2fs", ErrClipTooShort, t.ClipDuration())
	}
	if _, err := Lookup(t.Geometry); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(t.Overlays))
	for i, o := range t.Overlays {
		if o.ID == "" {
			return fmt.Errorf("overlay[%d]: id is required", i)
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("overlay[%d]: duplicate id %q", i, o.ID)
		}
		seen[o.ID] = struct{}{}
		if o.End <= o.Start {
			return fmt.Errorf("overlay %q: end must be after start", o.ID)
		}
		if o.FontSize <= 0 {
			return fmt.Errorf("overlay %q: font size must be positive", o.ID)
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
