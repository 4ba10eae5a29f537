package ffmpeg

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeggo "github.com/u2takey/ffmpeg-go"

	"github.com/kikiluvv/reelforge/pkg/util"
)

// ProbeSource reads duration, frame size and audio presence with ffprobe.
// The context deadline, if any, bounds the probe.
func ProbeSource(ctx context.Context, path string) (*SourceInfo, error) {
	if path == "" {
		return nil, errors.New("file path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		out string
		err error
	)
	if deadline, ok := ctx.Deadline(); ok {
		out, err = ffmpeggo.ProbeWithTimeout(path, time.Until(deadline), nil)
	} else {
		out, err = ffmpeggo.Probe(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "ffprobe failed for %s", path)
	}

	info, err := parseProbe([]byte(out))
	if err != nil {
		return nil, err
	}
	info.Path = path
	return info, nil
}

func parseProbe(data []byte) (*SourceInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, "failed to parse ffprobe output")
	}

	info := &SourceInfo{}
	var streamDuration float64

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName
			if stream.RFrameRate != "" {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}
			streamDuration = parseSeconds(stream.Duration)
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
			}
		}
	}

	if info.VideoCodec == "" {
		return nil, errors.New("no video stream found")
	}

	// container duration first, then the video stream's own
	info.Duration = parseSeconds(probe.Format.Duration)
	if info.Duration <= 0 {
		info.Duration = streamDuration
	}

	return info, nil
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}
