package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/reelforge/internal/graph"
)

type contextKey string

const configKey contextKey = "config"

// EnvPrefix prefixes every environment override
const EnvPrefix = "REELFORGE_"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir"`
	Concurrency int    `yaml:"concurrency"`
	LogLevel    string `yaml:"log_level"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Overlay settings
	Overlays OverlayConfig `yaml:"overlays"`

	// Audio settings
	Audio AudioConfig `yaml:"audio"`
}

type FFmpegConfig struct {
	BinaryPath   string `yaml:"binary_path"`
	Threads      int    `yaml:"threads"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	PixFmt       string `yaml:"pix_fmt"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

type OverlayConfig struct {
	FontRegular string `yaml:"font_regular"`
	FontBold    string `yaml:"font_bold"`
	Supersample int    `yaml:"supersample"`
}

type AudioConfig struct {
	DropoutTransition float64 `yaml:"dropout_transition"`
}

// Encoding returns the output encoder settings
func (c *Config) Encoding() graph.Encoding {
	return graph.Encoding{
		VideoCodec:   graph.DefaultVideoCodec,
		Preset:       c.FFmpeg.Preset,
		CRF:          c.FFmpeg.CRF,
		PixFmt:       c.FFmpeg.PixFmt,
		AudioCodec:   c.FFmpeg.AudioCodec,
		AudioBitrate: c.FFmpeg.AudioBitrate,
	}
}

// Load reads configuration from file or returns defaults, then applies
// REELFORGE_* environment overrides. A .env file in the working directory
// is loaded first when present; variables already set win over it.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values no export could run with
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.FFmpeg.CRF < 1 || c.FFmpeg.CRF > 51 {
		return fmt.Errorf("ffmpeg.crf must be within 1-51, got %d", c.FFmpeg.CRF)
	}
	if c.Overlays.Supersample < 1 || c.Overlays.Supersample > 4 {
		return fmt.Errorf("overlays.supersample must be within 1-4, got %d", c.Overlays.Supersample)
	}
	if c.Audio.DropoutTransition < 0 {
		return fmt.Errorf("audio.dropout_transition must not be negative, got %v", c.Audio.DropoutTransition)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:     "",
		Concurrency: 4,
		LogLevel:    "info",
		FFmpeg: FFmpegConfig{
			BinaryPath:   "ffmpeg",
			Threads:      0,
			Preset:       graph.DefaultPreset,
			CRF:          graph.DefaultCRF,
			PixFmt:       graph.DefaultPixFmt,
			AudioCodec:   graph.DefaultAudioCodec,
			AudioBitrate: graph.DefaultAudioBitrate,
		},
		Overlays: OverlayConfig{
			Supersample: 1,
		},
		Audio: AudioConfig{
			DropoutTransition: graph.DefaultDropoutTransition,
		},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from REELFORGE_* variables
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = f
		return nil
	}

	str("WORK_DIR", &c.WorkDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("FFMPEG_BINARY", &c.FFmpeg.BinaryPath)
	str("FFMPEG_PRESET", &c.FFmpeg.Preset)
	str("FFMPEG_PIX_FMT", &c.FFmpeg.PixFmt)
	str("FFMPEG_AUDIO_CODEC", &c.FFmpeg.AudioCodec)
	str("FFMPEG_AUDIO_BITRATE", &c.FFmpeg.AudioBitrate)
	str("FONT_REGULAR", &c.Overlays.FontRegular)
	str("FONT_BOLD", &c.Overlays.FontBold)

	for key, dst := range map[string]*int{
		"CONCURRENCY":         &c.Concurrency,
		"FFMPEG_THREADS":      &c.FFmpeg.Threads,
		"FFMPEG_CRF":          &c.FFmpeg.CRF,
		"OVERLAY_SUPERSAMPLE": &c.Overlays.Supersample,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	return float("DROPOUT_TRANSITION", &c.Audio.DropoutTransition)
}

func findConfigFile() string {
	candidates := []string{
		"./reelforge.yaml",
		"./config.yaml",
		"./config.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".reelforge", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
