package statusservice

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/persistence"
	"github.com/airenas/council/internal/pkg/status"
	"github.com/airenas/council/internal/pkg/utils"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	dateLayout   = "02-01-2006"
	defaultLimit = 20
	maxLimit     = 100
)

// DB loads jobs
type DB interface {
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	ListJobs(ctx context.Context, filter *persistence.JobFilter) ([]*persistence.Job, error)
}

// WSConnHandler WebSocket connection wrapper
type WSConnHandler interface {
	HandleConnection(WsConn) error
	GetConnections(id string) ([]WsConn, bool)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	WSHandler WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP COUNCIL status service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("council_status", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/status/:id", statusHandler(data))
	e.GET("/transcriptions", listHandler(data))
	e.GET("/live", live(data))
	e.GET("/subscribe", subscribeHandler(data))

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

func statusHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("status method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.DB.LoadJob(c.Request().Context(), id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if job == nil || !owns(c, job) {
			return echo.NewHTTPError(http.StatusNotFound, "Not found")
		}
		return c.JSON(http.StatusOK, mapJob(job))
	}
}

func listHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("list method")()

		userID := c.Request().Header.Get(api.HeaderUserID)
		if userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "no user")
		}
		filter, err := parseFilter(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.UserID = userID
		jobs, err := data.DB.ListJobs(c.Request().Context(), filter)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		res := make([]*api.Job, 0, len(jobs))
		for _, j := range jobs {
			res = append(res, mapJob(j))
		}
		return c.JSON(http.StatusOK, res)
	}
}

func parseFilter(c echo.Context) (*persistence.JobFilter, error) {
	res := &persistence.JobFilter{Limit: defaultLimit}
	if st := c.QueryParam("status"); st != "" {
		if status.From(st) == 0 {
			return nil, errors.Errorf("wrong status '%s'", st)
		}
		res.Status = st
	}
	var err error
	if res.From, err = parseTime(c.QueryParam("from"), false); err != nil {
		return nil, errors.Wrap(err, "wrong from")
	}
	if res.To, err = parseTime(c.QueryParam("to"), true); err != nil {
		return nil, errors.Wrap(err, "wrong to")
	}
	if !res.From.IsZero() && !res.To.IsZero() && res.To.Before(res.From) {
		return nil, errors.New("to is before from")
	}
	if res.Limit, err = parseInt(c.QueryParam("limit"), defaultLimit); err != nil || res.Limit < 1 || res.Limit > maxLimit {
		return nil, errors.Errorf("wrong limit, expected 1..%d", maxLimit)
	}
	if res.Offset, err = parseInt(c.QueryParam("offset"), 0); err != nil || res.Offset < 0 {
		return nil, errors.New("wrong offset")
	}
	return res, nil
}

// parseTime accepts dd-mm-yyyy or RFC3339, a date only end bound covers the whole day
func parseTime(s string, end bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if res, err := time.Parse(dateLayout, s); err == nil {
		if end {
			return res.Add(24*time.Hour - time.Nanosecond), nil
		}
		return res, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseInt(s string, d int) (int, error) {
	if s == "" {
		return d, nil
	}
	return strconv.Atoi(s)
}

func owns(c echo.Context, job *persistence.Job) bool {
	userID := c.Request().Header.Get(api.HeaderUserID)
	return userID == "" || userID == job.UserID
}

func mapJob(job *persistence.Job) *api.Job {
	return &api.Job{ID: job.ID, Status: job.Status, Error: utils.FromSQLStr(job.Error),
		CreatedAt: formatTime(job.Created), UpdatedAt: formatTime(job.Updated)}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}
