package mode

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/server"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

// Serve runs the WebSocket detection server and persists the stats of every
// session that closes.
func Serve(canxCtx context.Context, svcs pipeline.ServicesFactory, _ []string) error {
	// Sessions offer their final stats here, a full buffer drops them
	statsStream := make(chan model.SessionStats, 64)

	serverResult := make(chan error, 1)
	go func() {
		serverResult <- server.Run(canxCtx, svcs, statsStream)
	}()

	banner := color.New(color.FgCyan, color.Bold)
	_, _ = banner.Fprintf(os.Stderr, "detection server on :%d (model loaded: %t)\n",
		svcs.CfgSvc.GetPort(), svcs.InferenceSvc != nil)

	var runErr error

	// Wait for cancellation, server exit or stats
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"server mode context cancelled",
			)
			goto resume

		case err := <-serverResult:
			if err != nil {
				runErr = err
				procError(svcs.DataSvc, model.GenError("server",
					err,
					map[string]interface{}{
						"port": svcs.CfgSvc.GetPort(),
					},
					"server stopped"))
			}
			goto resume

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)
		}
	}

	// Keep draining while open sessions wind down and report their stats
resume:
	lgr.Logger.Info(
		"server mode is waiting for sessions to exit",
	)

	timer := time.NewTimer(time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"server mode shutdown waiting period expired. Exiting now",
				slog.Duration("period", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second),
			)
			return runErr

		case err := <-serverResult:
			if err != nil {
				runErr = err
			}

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)
		}
	}
}
