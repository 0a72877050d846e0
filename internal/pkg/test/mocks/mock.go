package mocks

import (
	"context"
	"io"
	"time"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/council"
	"github.com/airenas/council/internal/pkg/persistence"
	"github.com/airenas/council/internal/pkg/provider"
	"github.com/stretchr/testify/mock"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

// SaveFile func mock
func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	args := m.Called(ctx, name, r, size)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return to[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

// Clean func mock
func (m *Filer) Clean(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertJob(ctx context.Context, job *persistence.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) ClaimAttempt(ctx context.Context, id string, until time.Time) (bool, error) {
	args := m.Called(ctx, id, until)
	return args.Bool(0), args.Error(1)
}

func (m *DB) ReleaseAttempt(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) MarkFailed(ctx context.Context, id, errStr string) error {
	args := m.Called(ctx, id, errStr)
	return args.Error(0)
}

func (m *DB) Complete(ctx context.Context, jobID string, res *persistence.Result) error {
	args := m.Called(ctx, jobID, res)
	return args.Error(0)
}

func (m *DB) LoadResult(ctx context.Context, jobID, id string) (*persistence.Result, error) {
	args := m.Called(ctx, jobID, id)
	return to[*persistence.Result](args.Get(0)), args.Error(1)
}

func (m *DB) LoadResults(ctx context.Context, jobID string) ([]*persistence.Result, error) {
	args := m.Called(ctx, jobID)
	return to[[]*persistence.Result](args.Get(0)), args.Error(1)
}

func (m *DB) SetResultVideo(ctx context.Context, id, file string) error {
	args := m.Called(ctx, id, file)
	return args.Error(0)
}

func (m *DB) SetStitchError(ctx context.Context, id, errStr string) error {
	args := m.Called(ctx, id, errStr)
	return args.Error(0)
}

func (m *DB) DeleteResult(ctx context.Context, jobID, id string) (bool, error) {
	args := m.Called(ctx, jobID, id)
	return args.Bool(0), args.Error(1)
}

func (m *DB) ListJobs(ctx context.Context, filter *persistence.JobFilter) ([]*persistence.Job, error) {
	args := m.Called(ctx, filter)
	return to[[]*persistence.Job](args.Get(0)), args.Error(1)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

func (m *Sender) SendUnique(ctx context.Context, msg messages.Message, queue string) (bool, error) {
	args := m.Called(ctx, msg, queue)
	return args.Bool(0), args.Error(1)
}

// Adapter is transcription provider mock
type Adapter struct {
	mock.Mock
	name string
}

// NewAdapter creates named adapter mock
func NewAdapter(name string) *Adapter {
	return &Adapter{name: name}
}

func (m *Adapter) Name() string {
	return m.name
}

func (m *Adapter) IsConfigured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *Adapter) Transcribe(ctx context.Context, audio provider.Audio) (provider.RawResult, error) {
	args := m.Called(ctx, audio)
	return args.Get(0), args.Error(1)
}

func (m *Adapter) ExtractText(raw provider.RawResult) (string, error) {
	args := m.Called(raw)
	return args.String(0), args.Error(1)
}

func (m *Adapter) ExtractSegments(raw provider.RawResult) ([]api.Segment, error) {
	args := m.Called(raw)
	return to[[]api.Segment](args.Get(0)), args.Error(1)
}

// Providers is registry mock
type Providers struct{ mock.Mock }

func (m *Providers) Available(videoPath string) []provider.Adapter {
	args := m.Called(videoPath)
	return to[[]provider.Adapter](args.Get(0))
}

func (m *Providers) Names() []string {
	args := m.Called()
	return to[[]string](args.Get(0))
}

// Model is judge LLM mock
type Model struct{ mock.Mock }

func (m *Model) Generate(ctx context.Context, req *council.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Extractor is media tool mock
type Extractor struct{ mock.Mock }

func (m *Extractor) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	args := m.Called(ctx, videoPath)
	return args.String(0), args.Error(1)
}

// Stitcher is subtitle stitcher mock
type Stitcher struct{ mock.Mock }

func (m *Stitcher) Stitch(ctx context.Context, videoPath string, segments []api.Segment) (string, error) {
	args := m.Called(ctx, videoPath, segments)
	return args.String(0), args.Error(1)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
