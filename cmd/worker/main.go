package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/council/internal/pkg/council"
	"github.com/airenas/council/internal/pkg/council/gemini"
	"github.com/airenas/council/internal/pkg/media"
	"github.com/airenas/council/internal/pkg/postgres"
	"github.com/airenas/council/internal/pkg/provider"
	"github.com/airenas/council/internal/pkg/provider/assemblyai"
	"github.com/airenas/council/internal/pkg/provider/openai"
	"github.com/airenas/council/internal/pkg/subtitles"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/council/internal/pkg/worker"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 2)
	data.Testing = cfg.GetBool("worker.testing")
	data.TempDir = cfg.GetString("worker.tempDir")
	data.Retry = retryPolicy(cfg)
	goapp.Log.Info().Int("maxRetries", data.Retry.MaxRetries).Dur("base", data.Retry.Base).
		Dur("max", data.Retry.Max).Msg("retry")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	data.Filer, err = miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	data.DB, err = postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	pCfg := provider.LoadConfig(cfg)
	data.Providers = provider.NewRegistry(openai.NewClient(pCfg.OpenAI), assemblyai.NewClient(pCfg.AssemblyAI))
	goapp.Log.Info().Strs("providers", data.Providers.Names()).Msg("registered")

	ffmpeg, err := media.NewFFmpeg(cfg.GetString("ffmpeg.path"), cfg.GetDuration("ffmpeg.timeout"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init ffmpeg")
	}
	data.Media = ffmpeg
	model, err := gemini.NewClient(pCfg.Gemini)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init judge model")
	}
	data.Judge, err = council.NewJudge(model)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init judge")
	}
	data.Stitcher, err = subtitles.NewStitcher(ffmpeg, defaultV(cfg.GetInt("stitch.retries"), 2))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init stitcher")
	}

	go utils.RunPerfEndpoint()

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

// retryPolicy reads retry.*, maxRetries may be set to 0 explicitly to disable retries
func retryPolicy(cfg *viper.Viper) worker.RetryPolicy {
	res := worker.RetryPolicy{MaxRetries: 3,
		Base: defaultV(cfg.GetDuration("retry.base"), time.Second*10),
		Max:  defaultV(cfg.GetDuration("retry.max"), time.Minute*5)}
	if cfg.IsSet("retry.maxRetries") {
		res.MaxRetries = cfg.GetInt("retry.maxRetries")
	}
	if res.Max < res.Base {
		res.Max = res.Base
	}
	return res
}

func defaultV[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
                                _ __
  _________  __  ______  _____(_) /
 / ___/ __ \/ / / / __ \/ ___/ / / 
/ /__/ /_/ / /_/ / / / / /__/ / /  
\___/\____/\__,_/_/ /_/\___/_/_/   v: %s

                      __            
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /    
|__/|__/\____/_/  /_/|_|\___/_/     

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/council"))
}
