package subtitles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/test"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 0, want: "00:00:00,000"},
		{in: 1.5, want: "00:00:01,500"},
		{in: 0.0009, want: "00:00:00,000"},
		{in: 59.9999, want: "00:00:59,999"},
		{in: 61.25, want: "00:01:01,250"},
		{in: 3661.25, want: "01:01:01,250"},
		{in: 36000, want: "10:00:00,000"},
		{in: -1, want: "00:00:00,000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTime(tt.in))
		})
	}
}

func TestRender(t *testing.T) {
	assert.Equal(t, "", Render(nil))
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,500\nlabas\n\n2\n00:00:01,500 --> 00:00:03,000\nrytas\n\n",
		Render([]api.Segment{{Start: 0, End: 1.5, Text: "labas"}, {Start: 1.5, End: 3, Text: "rytas"}}))
}

type testBurner struct {
	errs  []error
	calls int
	srts  []string
	data  []string
	outs  []string
}

func (b *testBurner) BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	b.calls++
	d, _ := os.ReadFile(subtitlePath)
	b.srts = append(b.srts, subtitlePath)
	b.data = append(b.data, string(d))
	b.outs = append(b.outs, outputPath)
	if len(b.errs) >= b.calls {
		return b.errs[b.calls-1]
	}
	return nil
}

func newTestStitcher(t *testing.T, b Burner, retries uint64) *Stitcher {
	t.Helper()
	res, err := NewStitcher(b, 1)
	require.Nil(t, err)
	res.backoff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, retries) }
	return res
}

var testSegments = []api.Segment{{Start: 0, End: 1, Text: "labas"}}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "/tmp/up/v_subtitled.mp4", OutputPath("/tmp/up/v.mov"))
	assert.Equal(t, "/tmp/v_subtitled.mp4", OutputPath("/tmp/v"))
}

func TestStitch(t *testing.T) {
	b := &testBurner{}
	res, err := newTestStitcher(t, b, 2).Stitch(test.Ctx(t), "/tmp/v.mp4", testSegments)
	require.Nil(t, err)
	assert.Equal(t, "/tmp/v_subtitled.mp4", res)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,000\nlabas\n\n", b.data[0])
	assert.Equal(t, res, b.outs[0])
	_, err = os.Stat(b.srts[0])
	assert.True(t, os.IsNotExist(err))
}

func TestStitch_RetryThenOK(t *testing.T) {
	b := &testBurner{errs: []error{fmt.Errorf("olia")}}
	res, err := newTestStitcher(t, b, 2).Stitch(test.Ctx(t), "/tmp/v.mp4", testSegments)
	require.Nil(t, err)
	assert.Equal(t, "/tmp/v_subtitled.mp4", res)
	assert.Equal(t, 2, b.calls)
	assert.NotEqual(t, b.srts[0], b.srts[1])
	for _, s := range b.srts {
		_, err = os.Stat(s)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestStitch_Exhausted(t *testing.T) {
	e := fmt.Errorf("olia")
	b := &testBurner{errs: []error{e, e, e, e}}
	_, err := newTestStitcher(t, b, 2).Stitch(test.Ctx(t), "/tmp/v.mp4", testSegments)
	require.NotNil(t, err)
	assert.Equal(t, 3, b.calls)
	for _, s := range b.srts {
		_, err = os.Stat(s)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestStitch_NoSegments(t *testing.T) {
	b := &testBurner{}
	_, err := newTestStitcher(t, b, 2).Stitch(test.Ctx(t), "/tmp/v.mp4", nil)
	assert.True(t, errors.Is(err, ErrNoSegments))
	assert.Equal(t, 0, b.calls)
}

func TestNewStitcher(t *testing.T) {
	_, err := NewStitcher(nil, 1)
	assert.NotNil(t, err)
}
