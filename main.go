package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/mode"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/codec"
	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/data"
	"github.com/khaledhikmat/vs-detect/service/inference"
	"github.com/khaledhikmat/vs-detect/service/lgr"
	"github.com/khaledhikmat/vs-detect/service/tracing"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"serve":  mode.Serve,
	"detect": mode.Detect,
	"feed":   mode.Feed,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	runTimeEnv := os.Getenv("RUN_TIME_ENV")
	if runTimeEnv == "dev" || runTimeEnv == "" {
		lgr.Logger.Info("loading env vars from .env file")
		err := godotenv.Load()
		if err != nil {
			lgr.Logger.Warn("no .env file loaded", slog.Any("error", xerrors.New(err.Error())))
		}
	}

	lgr.Init(lgr.Options{
		Level: os.Getenv("LOG_LEVEL"),
		JSON:  runTimeEnv == "prod",
		File:  os.Getenv("LOG_FILE"),
	})

	modeType := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
		args = args[1:]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		panic("invalid mode")
	}

	// Create the services needed for the mode processor
	// Config service
	cfgSvc, err := newConfig()
	if err != nil {
		lgr.Logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	// Tracing service, installed before any session asks for a tracer
	tracingSvc, err := tracing.New(cfgSvc, os.Stderr)
	if err != nil {
		lgr.Logger.Error("error creating tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := tracingSvc.Shutdown(shutdownCtx); err != nil {
			lgr.Logger.Warn("error flushing traces", slog.Any("error", err))
		}
	}()
	// Codec service
	codecSvc, err := codec.New(cfgSvc)
	if err != nil {
		lgr.Logger.Error("error creating codec", slog.Any("error", err))
		os.Exit(1)
	}
	// Inference service, a model that fails to load stops the process
	// before anything listens
	inferenceSvc, err := inference.New(cfgSvc)
	if err != nil {
		lgr.Logger.Error("error loading model",
			slog.String("model", cfgSvc.GetModelPath()),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
	if inferenceSvc != nil {
		defer inferenceSvc.Close()
	}
	// Data service
	dataSvc := data.NewFilesDB(cfgSvc)
	defer dataSvc.Close()

	svcs := pipeline.ServicesFactory{
		CfgSvc:       cfgSvc,
		CodecSvc:     codecSvc,
		InferenceSvc: inferenceSvc,
		DataSvc:      dataSvc,
	}

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, args)
	}()

	// Wait for cancellation or mode proc
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"detection pod context cancelled",
		)

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Error(
				"detection pod mode processor exited",
				slog.Any("error", err),
			)
		}
		canxFn()
		return
	}

	lgr.Logger.Info(
		"detection pod is waiting for the mode processor to exit",
	)

	// Give the mode processor up to `waitOnShutdown` to drain and exit
	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"detection pod shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Info(
				"detection pod mode processor exited",
				slog.Any("error", err),
			)
		}
	}
}

// newConfig reads CONFIG_FILE when it is set and the environment otherwise.
func newConfig() (config.IService, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.NewFile(path)
	}
	return config.NewEnv()
}
