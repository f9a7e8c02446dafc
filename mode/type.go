package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/data"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

// Processor runs one process mode until it finishes or canxCtx is cancelled.
// args are the command-line arguments that follow the mode name.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error

func procStats(datasvc data.IService, stats model.SessionStats) {
	err := datasvc.NewSessionStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store session stats",
			slog.String("session", stats.ID),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
