package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

const (
	opExtractAudio  = "extract_audio"
	opBurnSubtitles = "burn_subtitles"
	maxStderr       = 2000
)

// Runner executes an external command, returns its stderr
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// FFmpeg is the media tool backed by the ffmpeg binary
type FFmpeg struct {
	path    string
	timeout time.Duration
	runner  Runner
}

// NewFFmpeg creates ffmpeg wrapper, path defaults to ffmpeg in PATH
func NewFFmpeg(path string, timeout time.Duration) (*FFmpeg, error) {
	if path == "" {
		path = "ffmpeg"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFFmpegNotFound, path)
	}
	if timeout <= 0 {
		timeout = time.Minute * 30
	}
	goapp.Log.Info().Str("path", path).Dur("timeout", timeout).Msg("ffmpeg")
	return &FFmpeg{path: path, timeout: timeout, runner: execRunner{}}, nil
}

// AudioPath returns the wav path for the video: same name, .wav extension
func AudioPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".wav"
}

// ExtractAudio converts video's audio track into 16 bit PCM wav next to the video
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	defer goapp.Estimate("extract audio")()
	if err := checkInput(videoPath); err != nil {
		return "", NewError(opExtractAudio, videoPath, err, "")
	}
	res := AudioPath(videoPath)
	if err := f.run(ctx, opExtractAudio, videoPath, "-i", videoPath, "-acodec", "pcm_s16le", "-vn", res, "-y"); err != nil {
		return "", err
	}
	return res, nil
}

// BurnSubtitles renders the srt file into a new video, re-encodes video, AAC audio,
// moves moov atom to the front for streaming
func (f *FFmpeg) BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	defer goapp.Estimate("burn subtitles")()
	if err := checkInput(videoPath); err != nil {
		return NewError(opBurnSubtitles, videoPath, err, "")
	}
	if err := checkInput(subtitlePath); err != nil {
		return NewError(opBurnSubtitles, subtitlePath, err, "")
	}
	return f.run(ctx, opBurnSubtitles, videoPath, "-y", "-i", videoPath,
		"-vf", "subtitles="+EscapeFilterPath(subtitlePath),
		"-c:v", "libx264", "-c:a", "aac", "-movflags", "+faststart", outputPath)
}

func (f *FFmpeg) run(ctx context.Context, op, file string, args ...string) error {
	ctx, cf := context.WithTimeout(ctx, f.timeout)
	defer cf()
	goapp.Log.Debug().Str("op", op).Strs("args", args).Msg("ffmpeg")
	stderr, err := f.runner.Run(ctx, f.path, args...)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%v: %w", err, ctx.Err())
		}
		return NewError(op, file, err, tail(stderr, maxStderr))
	}
	return nil
}

// EscapeFilterPath escapes a path for usage inside ffmpeg filter graph option
func EscapeFilterPath(path string) string {
	p := filepath.ToSlash(path)
	r := strings.NewReplacer(`\`, `\\\\`, `'`, `\\\'`, `:`, `\\:`, `,`, `\,`, `[`, `\[`, `]`, `\]`, `;`, `\;`)
	return r.Replace(p)
}

func checkInput(file string) error {
	st, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoInput, err)
	}
	if st.IsDir() || st.Size() == 0 {
		return ErrNoInput
	}
	return nil
}

func tail(s string, l int) string {
	s = strings.TrimSpace(s)
	if len(s) <= l {
		return s
	}
	return s[len(s)-l:]
}
