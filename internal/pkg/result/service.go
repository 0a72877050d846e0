package result

import (
	"context"
	"io"
	"io/fs"
	"log"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/persistence"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// FileReader loads file by name
type FileReader interface {
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
}

// DB provides job results
type DB interface {
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	LoadResults(ctx context.Context, jobID string) ([]*persistence.Result, error)
	LoadResult(ctx context.Context, jobID, id string) (*persistence.Result, error)
	DeleteResult(ctx context.Context, jobID, id string) (bool, error)
}

// Data keeps data required for service work
type Data struct {
	Port   int
	Reader FileReader
	DB     DB
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msg("Starting COUNCIL result service")

	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 5 * time.Minute

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Reader == nil {
		return errors.New("no file reader")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("council_result", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/result/:id", list(data))
	e.GET("/result/:id/:rid", get(data))
	e.DELETE("/result/:id/:rid", remove(data))
	e.GET("/video/:id/:rid", downloadVideo(data))
	e.HEAD("/video/:id/:rid", downloadVideo(data))
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

func list(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("list method")()
		id, err := checkJob(c, data)
		if err != nil {
			return err
		}
		results, err := data.DB.LoadResults(c.Request().Context(), id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		res := make([]*api.Result, 0, len(results))
		for _, r := range results {
			res = append(res, mapResult(r))
		}
		return c.JSON(http.StatusOK, res)
	}
}

func get(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("get method")()
		r, err := loadResult(c, data)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, mapResult(r))
	}
}

func remove(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete method")()
		id, err := checkJob(c, data)
		if err != nil {
			return err
		}
		rid := c.Param("rid")
		ok, err := data.DB.DeleteResult(c.Request().Context(), id, rid)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "Not found")
		}
		goapp.Log.Info().Str("ID", id).Str("result", rid).Msg("deleted")
		return c.NoContent(http.StatusNoContent)
	}
}

func downloadVideo(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("download method")()
		r, err := loadResult(c, data)
		if err != nil {
			return err
		}
		if !r.VideoFile.Valid {
			return echo.NewHTTPError(http.StatusNotFound, "video not ready")
		}
		return serveFile(c, data, r.VideoFile.String)
	}
}

func checkJob(c echo.Context, data *Data) (string, error) {
	id := c.Param("id")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "No ID")
	}
	job, err := data.DB.LoadJob(c.Request().Context(), id)
	if err != nil {
		goapp.Log.Error().Err(err).Send()
		return "", echo.NewHTTPError(http.StatusInternalServerError, "Service error")
	}
	userID := c.Request().Header.Get(api.HeaderUserID)
	if job == nil || (userID != "" && userID != job.UserID) {
		return "", echo.NewHTTPError(http.StatusNotFound, "Not found")
	}
	return id, nil
}

func loadResult(c echo.Context, data *Data) (*persistence.Result, error) {
	id, err := checkJob(c, data)
	if err != nil {
		return nil, err
	}
	r, err := data.DB.LoadResult(c.Request().Context(), id, c.Param("rid"))
	if err != nil {
		goapp.Log.Error().Err(err).Send()
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Service error")
	}
	if r == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "Not found")
	}
	return r, nil
}

func mapResult(r *persistence.Result) *api.Result {
	res := &api.Result{ID: r.ID, CreatedAt: r.Created.UTC().Format(time.RFC3339), OutputLanguage: r.OutputLanguage,
		UsedModel: r.UsedModel, GeneratedText: r.GeneratedText, Segments: r.Segments, Evaluation: r.Evaluation,
		VideoReady: r.VideoFile.Valid, StitchError: utils.FromSQLStr(r.StitchError)}
	if res.Segments == nil {
		res.Segments = []api.Segment{}
	}
	return res
}

func serveFile(c echo.Context, data *Data, name string) error {
	goapp.Log.Info().Str("file", name).Msg("loading")
	file, err := data.Reader.LoadFile(c.Request().Context(), name)
	if err != nil {
		goapp.Log.Error().Err(err).Send()
		if isNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file")
	}
	defer file.Close()
	modTime := time.Time{}
	if st, ok := file.(interface{ Stat() (fs.FileInfo, error) }); ok {
		stat, err := st.Stat()
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			if isNotFound(err) {
				return echo.NewHTTPError(http.StatusNotFound, "not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
		}
		modTime = stat.ModTime()
	}
	fileName := path.Base(path.Dir(name)) + "_" + path.Base(name)
	w := c.Response()
	w.Header().Set("Content-Disposition", "attachment; filename="+fileName)
	http.ServeContent(w, c.Request(), fileName, modTime, file)
	return nil
}

func isNotFound(err error) bool {
	var errTest minio.ErrorResponse
	return errors.As(err, &errTest) && errTest.StatusCode == http.StatusNotFound
}
