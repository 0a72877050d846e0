package subtitles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// ErrNoSegments nothing to burn
var ErrNoSegments = errors.New("no segments")

// Burner renders subtitles into video
type Burner interface {
	BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error
}

// Stitcher burns segments into the video with bounded retries
type Stitcher struct {
	burner  Burner
	backoff func() backoff.BackOff
}

// NewStitcher creates stitcher, retries is the count of additional attempts
func NewStitcher(burner Burner, retries int) (*Stitcher, error) {
	if burner == nil {
		return nil, fmt.Errorf("no burner")
	}
	if retries < 0 {
		retries = 0
	}
	goapp.Log.Info().Int("retries", retries).Msg("stitcher")
	return &Stitcher{burner: burner, backoff: func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries))
	}}, nil
}

// OutputPath returns <dir>/<base>_subtitled.mp4 for the video
func OutputPath(videoPath string) string {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(filepath.Dir(videoPath), base+"_subtitled.mp4")
}

// Stitch burns segments into the video, returns output path
func (s *Stitcher) Stitch(ctx context.Context, videoPath string, segments []api.Segment) (string, error) {
	if len(segments) == 0 {
		return "", ErrNoSegments
	}
	defer goapp.Estimate("stitch")()
	out := OutputPath(videoPath)
	attempt := 0
	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		attempt++
		if err := s.stitch(ctx, videoPath, segments, out); err != nil {
			goapp.Log.Warn().Err(err).Int("attempt", attempt).Str("video", videoPath).Msg("stitch failed")
			return "", ctx.Err() == nil, err
		}
		return out, false, nil
	}, s.backoff())
}

func (s *Stitcher) stitch(ctx context.Context, videoPath string, segments []api.Segment, out string) error {
	f, err := os.CreateTemp("", "subs_*.srt")
	if err != nil {
		return fmt.Errorf("can't create srt: %w", err)
	}
	defer utils.RemoveFile(f.Name())
	if err := Write(f, segments); err != nil {
		_ = f.Close()
		return fmt.Errorf("can't write srt: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("can't close srt: %w", err)
	}
	return s.burner.BurnSubtitles(ctx, videoPath, f.Name(), out)
}
