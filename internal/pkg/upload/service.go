package upload

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/persistence"
	"github.com/airenas/council/internal/pkg/status"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/council/internal/pkg/worker"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DefaultMaxSize of the uploaded video
const DefaultMaxSize = 25 * 1024 * 1024

// FileSaver provides save file functionality
type FileSaver interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// MsgSender enqueues a message unless the same job is already queued
type MsgSender interface {
	SendUnique(context.Context, amessages.Message, string) (bool, error)
}

// DB saves jobs
type DB interface {
	InsertJob(ctx context.Context, job *persistence.Job) error
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
}

// Data keeps data required for service work
type Data struct {
	Port        int
	Saver       FileSaver
	DB          DB
	MsgSender   MsgSender
	MaxSize     int64
	RetrySecret string
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP COUNCIL upload service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Saver == nil {
		return errors.New("no file saver")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.MaxSize <= 0 {
		data.MaxSize = DefaultMaxSize
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("council_upload", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/upload", upload(data))
	if data.RetrySecret != "" {
		e.POST(fmt.Sprintf("/retry/%s/:id", data.RetrySecret), retry(data))
	}
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type result struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

func upload(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("upload method")()
		ctx := c.Request().Context()

		userID := c.Request().Header.Get(api.HeaderUserID)
		if userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "no user")
		}

		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)
		if err := validateFormFiles(form); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		fHeader := form.File[api.PrmFile][0]
		if fHeader.Size > data.MaxSize {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file too large, max %d MB", data.MaxSize/1024/1024))
		}
		ext := strings.ToLower(filepath.Ext(fHeader.Filename))
		if !utils.SupportVideoExt(ext) {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong file extension: "+ext)
		}
		file, err := fHeader.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't read file")
		}
		defer file.Close()
		if err := checkVideo(file); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		job := &persistence.Job{ID: uuid.New().String(), UserID: userID, Status: status.Pending.String(),
			Created: time.Now()}
		job.VideoFile, err = utils.MakeValidateFileName(job.ID, fHeader.Filename)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong file name: "+fHeader.Filename)
		}
		job.Updated = job.Created
		goapp.Log.Info().Str("ID", job.ID).Str("user", userID).Str("file", job.VideoFile).Msg("upload")

		if err = data.Saver.SaveFile(ctx, job.VideoFile, file, fHeader.Size); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if err = data.DB.InsertJob(ctx, job); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if _, err = worker.Submit(ctx, data.MsgSender, job.ID, job.VideoFile); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}

		return c.JSON(http.StatusAccepted, result{ID: job.ID, Status: job.Status,
			CreatedAt: job.Created.UTC().Format(time.RFC3339)})
	}
}

func retry(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("retry method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.DB.LoadJob(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if job == nil {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		if status.From(job.Status) != status.Pending {
			return echo.NewHTTPError(http.StatusConflict, "job is "+job.Status)
		}
		ok, err := worker.Submit(ctx, data.MsgSender, job.ID, job.VideoFile)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if !ok {
			return echo.NewHTTPError(http.StatusConflict, "job is queued")
		}
		goapp.Log.Info().Str("ID", job.ID).Msg("resubmitted")
		return c.JSON(http.StatusAccepted, result{ID: job.ID, Status: job.Status})
	}
}

// checkVideo sniffs the content, rewinds the file
func checkVideo(f multipart.File) error {
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return fmt.Errorf("can't detect file type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("can't read file: %w", err)
	}
	if !strings.HasPrefix(mt.String(), "video/") {
		return errors.Errorf("not a video file: %s", mt.String())
	}
	return nil
}

func cleanFiles(f *multipart.Form) {
	if f != nil {
		_ = f.RemoveAll()
	}
}

func validateFormFiles(form *multipart.Form) error {
	for k := range form.Value {
		return errors.Errorf("unknown parameter '%s'", k)
	}
	if len(form.File[api.PrmFile]) != 1 {
		return errors.New("no form file parameter 'file'")
	}
	for k := range form.File {
		if k != api.PrmFile {
			return errors.Errorf("unexpected form file parameters '%v'", k)
		}
	}
	return nil
}
