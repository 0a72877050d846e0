package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/council"
	"github.com/airenas/council/internal/pkg/fanout"
	"github.com/airenas/council/internal/pkg/media"
	"github.com/airenas/council/internal/pkg/messages"
	"github.com/airenas/council/internal/pkg/persistence"
	"github.com/airenas/council/internal/pkg/provider"
	"github.com/airenas/council/internal/pkg/status"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/council/internal/pkg/utils/handler"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/vgarvardt/gue/v5"
)

const (
	defaultLanguage   = "en"
	transcribeTimeout = time.Minute * 120
	// attemptLease outlives the handler timeout, so only a crashed attempt loses it
	attemptLease  = transcribeTimeout + time.Minute*5
	postponeDelay = time.Second * 30
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// JobSender enqueues a message only if no job with the same ID is queued
type JobSender interface {
	SendUnique(context.Context, amessages.Message, string) (bool, error)
}

// DB provides persistence functionality
type DB interface {
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	ClaimAttempt(ctx context.Context, id string, until time.Time) (bool, error)
	ReleaseAttempt(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errStr string) error
	Complete(ctx context.Context, jobID string, res *persistence.Result) error
	LoadResult(ctx context.Context, jobID, id string) (*persistence.Result, error)
	SetResultVideo(ctx context.Context, id, file string) error
	SetStitchError(ctx context.Context, id, errStr string) error
}

// Filer retrieves and stores files
type Filer interface {
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
	SaveFile(ctx context.Context, name string, r io.Reader, size int64) error
}

// Providers returns configured transcription adapters
type Providers interface {
	Available(videoPath string) []provider.Adapter
	Names() []string
}

// Judge selects the best candidate
type Judge interface {
	Evaluate(ctx context.Context, audioPath string, labeled []council.Labeled) (*council.Verdict, error)
}

// Stitcher burns subtitles into video
type Stitcher interface {
	Stitch(ctx context.Context, videoPath string, segments []api.Segment) (string, error)
}

// RetryPolicy of the transcription job
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
}

// Backoff returns jittered exponential backoff of the policy
func (p RetryPolicy) Backoff() gue.Backoff {
	return handler.ExponentialBackoff(p.Base, p.Max)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Filer       Filer
	Providers   Providers
	Media       media.Extractor
	Judge       Judge
	Stitcher    Stitcher
	Retry       RetryPolicy
	TempDir     string
	Testing     bool
}

// StartWorkerService starts the event queue listener service to listen for events
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Int("maxRetries", data.Retry.MaxRetries).
		Dur("base", data.Retry.Base).Dur("max", data.Retry.Max).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.TypeTranscribe: handler.Create(data, handleTranscribe, handler.DefaultOpts[messages.TranscribeMessage]().
			WithFailure(transcribeFailureHandler(data)).WithTimeout(transcribeTimeout).
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
		messages.TypeStitch: handler.Create(data, handleStitch, handler.DefaultOpts[messages.StitchMessage]().
			WithTimeout(time.Minute*60).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Work),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("council-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

// Submit schedules the transcription of the job, job ID is the idempotency key.
// Returns false if the job is already queued
func Submit(ctx context.Context, sender JobSender, jobID, videoFile string) (bool, error) {
	if jobID == "" {
		return false, fmt.Errorf("no job ID")
	}
	res, err := sender.SendUnique(ctx, &messages.TranscribeMessage{QueueMessage: amessages.QueueMessage{ID: jobID},
		VideoFile: videoFile}, messages.WorkQueue(messages.TypeTranscribe))
	if err != nil {
		return false, fmt.Errorf("can't send msg: %w", err)
	}
	return res, nil
}

func handleTranscribe(ctx context.Context, m *messages.TranscribeMessage, data *ServiceData) (err error) {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling transcribe")
	job, err := data.DB.LoadJob(ctx, m.ID)
	if err != nil {
		return utils.NewErrTransient(fmt.Errorf("can't load job: %w", err))
	}
	if job == nil {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no job, drop")
		return nil
	}
	if st := status.From(job.Status); st.IsTerminal() {
		goapp.Log.Info().Str("ID", m.ID).Str("status", job.Status).Msg("job finished, skip")
		return nil
	}
	claimed, err := data.DB.ClaimAttempt(ctx, job.ID, time.Now().Add(attemptLease))
	if err != nil {
		return utils.NewErrTransient(fmt.Errorf("can't claim attempt: %w", err))
	}
	if !claimed {
		return notClaimed(ctx, data, job.ID)
	}
	defer func() {
		if err != nil {
			releaseAttempt(data, job.ID)
		}
	}()
	sendStatusChange(ctx, data, job.ID, status.Processing)

	adapters := data.Providers.Available(job.VideoFile)
	if len(adapters) == 0 {
		return fanout.ErrNoProvidersAvailable
	}

	videoPath, err := loadVideo(ctx, data, job.VideoFile)
	if err != nil {
		return err
	}
	defer utils.RemoveFile(videoPath)

	audio := media.NewAudio(data.Media, videoPath)
	defer audio.Close()
	audioPath, err := audio.Path(ctx)
	if err != nil {
		return fmt.Errorf("can't extract audio: %w", err)
	}

	fr, err := fanout.Run(ctx, adapters, audio)
	if err != nil {
		return fmt.Errorf("can't transcribe: %w", err)
	}
	labeled := council.Label(fr.Candidates, data.Providers.Names())
	verdict, err := data.Judge.Evaluate(ctx, audioPath, labeled)
	if err != nil {
		return fmt.Errorf("can't judge: %w", err)
	}
	winner := council.Winner(labeled, verdict).Candidate
	goapp.Log.Info().Str("ID", job.ID).Str("winner", winner.Provider).Int("candidates", len(labeled)).Msg("selected")

	res := &persistence.Result{ID: uuid.NewString(), JobID: job.ID, OutputLanguage: language(winner),
		UsedModel: winner.Provider, GeneratedText: winner.Text, Segments: winner.Segments,
		Evaluation: verdict.Evaluation(winner.Provider), Created: time.Now()}
	if err := data.DB.Complete(ctx, job.ID, res); err != nil {
		return utils.NewErrTransient(fmt.Errorf("can't save result: %w", err))
	}
	sendStatusChange(ctx, data, job.ID, status.Success)
	err = data.MsgSender.SendMessage(ctx, &messages.StitchMessage{QueueMessage: amessages.QueueMessage{ID: job.ID},
		ResultID: res.ID}, messages.WorkQueue(messages.TypeStitch))
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", job.ID).Msg("can't schedule stitch")
	}
	goapp.Log.Info().Str("ID", job.ID).Str("result", res.ID).Msg("Transcription completed")
	return nil
}

func notClaimed(ctx context.Context, data *ServiceData, id string) error {
	job, err := data.DB.LoadJob(ctx, id)
	if err != nil {
		return utils.NewErrTransient(fmt.Errorf("can't load job: %w", err))
	}
	if job == nil {
		goapp.Log.Warn().Str("ID", id).Msg("no job, drop")
		return nil
	}
	if st := status.From(job.Status); st.IsTerminal() {
		goapp.Log.Info().Str("ID", id).Str("status", job.Status).Msg("job finished, skip")
		return nil
	}
	at := time.Now().Add(postponeDelay)
	if job.AttemptUntil.Valid && job.AttemptUntil.Time.After(at) {
		at = job.AttemptUntil.Time
	}
	goapp.Log.Warn().Str("ID", id).Time("till", at).Msg("other attempt is running")
	return &handler.ErrPostpone{At: at, Reason: "other attempt is running"}
}

// releaseAttempt runs after the handler ctx may be expired
func releaseAttempt(data *ServiceData, id string) {
	ctx, cf := context.WithTimeout(context.Background(), time.Second*10)
	defer cf()
	if err := data.DB.ReleaseAttempt(ctx, id); err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't release attempt")
	}
}

func transcribeFailureHandler(data *ServiceData) handler.FailureFunc[messages.TranscribeMessage] {
	return func(ctx context.Context, m *messages.TranscribeMessage, err error, j *gue.Job) (bool, time.Duration, error) {
		if utils.IsTransient(err) && int(j.ErrorCount) < data.Retry.MaxRetries {
			delay := data.Retry.Backoff()(int(j.ErrorCount) + 1)
			goapp.Log.Info().Str("ID", m.ID).Int32("errCount", j.ErrorCount).Dur("after", delay).Msg("transient failure")
			return true, delay, nil
		}
		goapp.Log.Warn().Err(err).Str("ID", m.ID).Int32("errCount", j.ErrorCount).Msg("job failed")
		if err := data.DB.MarkFailed(ctx, m.ID, err.Error()); err != nil {
			return false, 0, fmt.Errorf("can't mark failed: %w", err)
		}
		sendStatusChange(ctx, data, m.ID, status.Failed)
		return false, 0, nil
	}
}

func handleStitch(ctx context.Context, m *messages.StitchMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("result", m.ResultID).Msg("handling stitch")
	res, err := data.DB.LoadResult(ctx, m.ID, m.ResultID)
	if err != nil {
		return fmt.Errorf("can't load result: %w", err)
	}
	if res == nil {
		goapp.Log.Warn().Str("ID", m.ID).Str("result", m.ResultID).Msg("no result, drop")
		return nil
	}
	if res.VideoFile.Valid {
		goapp.Log.Info().Str("ID", m.ID).Str("file", res.VideoFile.String).Msg("video exists, skip")
		return nil
	}
	job, err := data.DB.LoadJob(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load job: %w", err)
	}
	if job == nil {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no job, drop")
		return nil
	}
	videoPath, err := loadVideo(ctx, data, job.VideoFile)
	if err != nil {
		return err
	}
	defer utils.RemoveFile(videoPath)

	out, err := data.Stitcher.Stitch(ctx, videoPath, res.Segments)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", m.ID).Msg("stitch failed")
		if err := data.DB.SetStitchError(ctx, res.ID, err.Error()); err != nil {
			return fmt.Errorf("can't save stitch error: %w", err)
		}
		return nil
	}
	defer utils.RemoveFile(out)
	name := SubtitledVideoName(m.ID)
	if err := saveFile(ctx, data, name, out); err != nil {
		return err
	}
	if err := data.DB.SetResultVideo(ctx, res.ID, name); err != nil {
		return fmt.Errorf("can't save result video: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Str("file", name).Msg("Stitch completed")
	return nil
}

// SubtitledVideoName returns storage name of the rendered video
func SubtitledVideoName(jobID string) string {
	return jobID + "/subtitled.mp4"
}

func loadVideo(ctx context.Context, data *ServiceData, name string) (string, error) {
	f, err := data.Filer.LoadFile(ctx, name)
	if err != nil {
		return "", utils.WrapIfTransient(fmt.Errorf("can't load video: %w", err))
	}
	defer f.Close()
	res, err := utils.CopyToTemp(data.TempDir, "upload_*"+filepath.Ext(name), f)
	if err != nil {
		return "", fmt.Errorf("can't copy video: %w", err)
	}
	return res, nil
}

func saveFile(ctx context.Context, data *ServiceData, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("can't open %s: %w", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("can't stat %s: %w", path, err)
	}
	if err := data.Filer.SaveFile(ctx, name, f, st.Size()); err != nil {
		return fmt.Errorf("can't save file: %w", err)
	}
	return nil
}

func sendStatusChange(ctx context.Context, data *ServiceData, id string, st status.Status) {
	err := data.MsgSender.SendMessage(ctx, &messages.StatusMessage{QueueMessage: amessages.QueueMessage{ID: id},
		Status: st.String()}, messages.StatusChange)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't send status change")
	}
}

func language(c *api.Candidate) string {
	if c.Language != "" {
		return c.Language
	}
	return defaultLanguage
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Providers == nil {
		return fmt.Errorf("no Providers")
	}
	if data.Media == nil {
		return fmt.Errorf("no Media")
	}
	if data.Judge == nil {
		return fmt.Errorf("no Judge")
	}
	if data.Stitcher == nil {
		return fmt.Errorf("no Stitcher")
	}
	if data.Retry.MaxRetries < 0 {
		return fmt.Errorf("wrong max retries %d", data.Retry.MaxRetries)
	}
	return nil
}
