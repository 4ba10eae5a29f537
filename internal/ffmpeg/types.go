package ffmpeg

// SourceInfo contains what an export needs to know about the primary video
type SourceInfo struct {
	Path       string
	Duration   float64
	Width      int
	Height     int
	FPS        float64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string

	// OutTime is the encoded output position in seconds
	OutTime float64
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args []string
	// Dir is the working directory; relative input and output names resolve against it.
	Dir             string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called once per progress block emitted by -progress.
type ProgressFunc func(*Progress)
