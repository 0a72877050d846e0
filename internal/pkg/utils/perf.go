package utils

import (
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// RunPerfEndpoint serves pprof handlers on debug.port, does nothing if the port is not set
func RunPerfEndpoint() {
	port := goapp.Config.GetInt("debug.port")
	if port <= 0 {
		goapp.Log.Info().Msg("no debug.port, skip pprof endpoint")
		return
	}
	goapp.Log.Info().Int("port", port).Msg("starting pprof endpoint")
	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: perfMux(), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		goapp.Log.Error().Err(err).Msg("can't start pprof endpoint")
	}
}

func perfMux() *http.ServeMux {
	res := http.NewServeMux()
	res.HandleFunc("/debug/pprof/", pprof.Index)
	res.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	res.HandleFunc("/debug/pprof/profile", pprof.Profile)
	res.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	res.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return res
}
