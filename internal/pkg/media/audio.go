package media

import (
	"context"
	"sync"

	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"golang.org/x/sync/singleflight"
)

// Extractor derives an audio track from a video
type Extractor interface {
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
}

// Audio is a lazily extracted audio track of one video.
// Extraction runs once, concurrent callers wait for the same result.
type Audio struct {
	videoPath string
	extractor Extractor

	group singleflight.Group
	mu    sync.Mutex
	path  string
}

// NewAudio creates audio handle for the video
func NewAudio(extractor Extractor, videoPath string) *Audio {
	return &Audio{extractor: extractor, videoPath: videoPath}
}

// VideoPath returns source video path
func (a *Audio) VideoPath() string {
	return a.videoPath
}

// Path returns extracted audio file, extracts on first call.
// Failures are not cached, so the next call tries again.
func (a *Audio) Path(ctx context.Context) (string, error) {
	if res := a.cached(); res != "" {
		return res, nil
	}
	res, err, shared := a.group.Do(a.videoPath, func() (interface{}, error) {
		if res := a.cached(); res != "" {
			return res, nil
		}
		goapp.Log.Info().Str("video", a.videoPath).Msg("extracting audio")
		res, err := a.extractor.ExtractAudio(ctx, a.videoPath)
		if err != nil {
			return "", err
		}
		a.mu.Lock()
		a.path = res
		a.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		goapp.Log.Debug().Str("video", a.videoPath).Msg("shared audio extraction")
	}
	return res.(string), nil
}

// Close removes the extracted audio file
func (a *Audio) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	utils.RemoveFile(a.path)
	a.path = ""
}

func (a *Audio) cached() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}
