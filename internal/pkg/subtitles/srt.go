package subtitles

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/airenas/council/internal/pkg/api"
)

// FormatTime formats seconds as HH:MM:SS,mmm, fractions of ms are dropped
func FormatTime(seconds float64) string {
	ms := int64(seconds * 1000)
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// Write writes segments in SRT format
func Write(w io.Writer, segments []api.Segment) error {
	bw := bufio.NewWriter(w)
	for i, s := range segments {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", i+1, FormatTime(s.Start), FormatTime(s.End), s.Text); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Render returns SRT content
func Render(segments []api.Segment) string {
	var b bytes.Buffer
	_ = Write(&b, segments)
	return b.String()
}
