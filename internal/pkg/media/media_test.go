package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/airenas/council/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRunner struct {
	name   string
	args   []string
	stderr string
	err    error
	do     func(args []string)
}

func (r *testRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	r.name = name
	r.args = args
	if r.do != nil {
		r.do(args)
	}
	return r.stderr, r.err
}

func newTestFFmpeg(r Runner) *FFmpeg {
	return &FFmpeg{path: "ffmpeg", timeout: time.Second, runner: r}
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	res := filepath.Join(dir, name)
	require.Nil(t, os.WriteFile(res, []byte(data), 0600))
	return res
}

func TestAudioPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/tmp/upload_1.mp4", want: "/tmp/upload_1.wav"},
		{in: "/tmp/a.b.mkv", want: "/tmp/a.b.wav"},
		{in: "/tmp/noext", want: "/tmp/noext.wav"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, AudioPath(tt.in))
		})
	}
}

func TestExtractAudio(t *testing.T) {
	video := writeFile(t, t.TempDir(), "v.mp4", "video")
	r := &testRunner{}
	res, err := newTestFFmpeg(r).ExtractAudio(test.Ctx(t), video)
	require.Nil(t, err)
	assert.Equal(t, AudioPath(video), res)
	assert.Equal(t, "ffmpeg", r.name)
	assert.Equal(t, []string{"-i", video, "-acodec", "pcm_s16le", "-vn", res, "-y"}, r.args)
}

func TestExtractAudio_NoInput(t *testing.T) {
	r := &testRunner{}
	_, err := newTestFFmpeg(r).ExtractAudio(test.Ctx(t), filepath.Join(t.TempDir(), "none.mp4"))
	require.NotNil(t, err)
	var mErr *Error
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "extract_audio", mErr.Operation)
	assert.True(t, errors.Is(err, ErrNoInput))
	assert.Nil(t, r.args)
}

func TestExtractAudio_Fail(t *testing.T) {
	video := writeFile(t, t.TempDir(), "v.mp4", "video")
	r := &testRunner{err: fmt.Errorf("exit status 1"), stderr: "Invalid data found when processing input\n"}
	_, err := newTestFFmpeg(r).ExtractAudio(test.Ctx(t), video)
	require.NotNil(t, err)
	var mErr *Error
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "Invalid data found when processing input", mErr.Stderr)
	assert.Contains(t, err.Error(), "stderr: Invalid data")
}

func TestBurnSubtitles(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, dir, "v.mp4", "video")
	srt := writeFile(t, dir, "s.srt", "1\n")
	out := filepath.Join(dir, "out.mp4")
	r := &testRunner{}
	err := newTestFFmpeg(r).BurnSubtitles(test.Ctx(t), video, srt, out)
	require.Nil(t, err)
	assert.Equal(t, []string{"-y", "-i", video, "-vf", "subtitles=" + EscapeFilterPath(srt),
		"-c:v", "libx264", "-c:a", "aac", "-movflags", "+faststart", out}, r.args)
}

func TestBurnSubtitles_NoSubtitles(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, dir, "v.mp4", "video")
	r := &testRunner{}
	err := newTestFFmpeg(r).BurnSubtitles(test.Ctx(t), video, filepath.Join(dir, "s.srt"), filepath.Join(dir, "o.mp4"))
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrNoInput))
}

func TestEscapeFilterPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/tmp/subs_1.srt", want: "/tmp/subs_1.srt"},
		{in: "/tmp/a:b.srt", want: `/tmp/a\\:b.srt`},
		{in: "/tmp/a,b.srt", want: `/tmp/a\,b.srt`},
		{in: "/tmp/a'b.srt", want: `/tmp/a\\\'b.srt`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeFilterPath(tt.in))
		})
	}
}

func TestTail(t *testing.T) {
	assert.Equal(t, "olia", tail(" olia\n", 10))
	assert.Equal(t, "lia", tail("olia", 3))
}

type countExtractor struct {
	calls int32
	err   error
	wait  chan struct{}
}

func (e *countExtractor) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.wait != nil {
		<-e.wait
	}
	if e.err != nil {
		return "", e.err
	}
	return AudioPath(videoPath), nil
}

func TestAudio_Memoized(t *testing.T) {
	ex := &countExtractor{wait: make(chan struct{})}
	a := NewAudio(ex, "/tmp/v.mp4")
	var wg sync.WaitGroup
	res := make([]string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res[i], _ = a.Path(test.Ctx(t))
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(ex.wait)
	wg.Wait()
	for _, r := range res {
		assert.Equal(t, "/tmp/v.wav", r)
	}
	p, err := a.Path(test.Ctx(t))
	require.Nil(t, err)
	assert.Equal(t, "/tmp/v.wav", p)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ex.calls))
	assert.Equal(t, "/tmp/v.mp4", a.VideoPath())
}

func TestAudio_ErrorNotCached(t *testing.T) {
	ex := &countExtractor{err: fmt.Errorf("olia")}
	a := NewAudio(ex, "/tmp/v.mp4")
	_, err := a.Path(test.Ctx(t))
	assert.NotNil(t, err)
	ex.err = nil
	p, err := a.Path(test.Ctx(t))
	require.Nil(t, err)
	assert.Equal(t, "/tmp/v.wav", p)
	assert.Equal(t, int32(2), atomic.LoadInt32(&ex.calls))
}

func TestAudio_Close(t *testing.T) {
	dir := t.TempDir()
	video := writeFile(t, dir, "v.mp4", "video")
	writeFile(t, dir, "v.wav", "audio")
	a := NewAudio(&countExtractor{}, video)
	p, err := a.Path(test.Ctx(t))
	require.Nil(t, err)
	_, err = os.Stat(p)
	require.Nil(t, err)
	a.Close()
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
	a.Close()
}
