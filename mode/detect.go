package mode

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

// Detect runs each image file named in args through a single session and
// prints one response per line to stdout. The file path is used as the
// frame id.
func Detect(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	return detectFiles(canxCtx, svcs, args, os.Stdout, os.Stderr)
}

func detectFiles(canxCtx context.Context, svcs pipeline.ServicesFactory, paths []string, out, diag io.Writer) error {
	if len(paths) == 0 {
		return xerrors.New("detect mode needs at least one image path")
	}

	session := pipeline.NewSession("detect", "local", svcs)
	failed := color.New(color.FgRed)
	summary := color.New(color.FgGreen)

	var ok, bad int
	for _, path := range paths {
		if canxCtx.Err() != nil {
			break
		}

		sent := false
		send := func(payload []byte) error {
			sent = true
			_, err := out.Write(append(payload, '\n'))
			return err
		}

		err := detectFile(canxCtx, session, path, send)
		if err == nil && !sent {
			// the session logs why the frame was dropped
			err = xerrors.New("image could not be processed")
		}
		if err != nil {
			bad++
			_, _ = failed.Fprintf(diag, "%s: %v\n", path, err)
			procError(svcs.DataSvc, model.GenError("detect",
				err,
				map[string]interface{}{
					"path": path,
				},
				"error detecting objects in file"))
			continue
		}
		ok++
	}

	stats := session.Close()
	procStats(svcs.DataSvc, stats)
	_, _ = summary.Fprintf(diag, "%d processed, %d failed\n", ok, bad)
	lgr.Logger.Debug("detect mode finished",
		slog.Int("processed", ok),
		slog.Int("failed", bad),
	)
	return nil
}

func detectFile(ctx context.Context, session *pipeline.Session, path string, send pipeline.Sender) error {
	img, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("read image: %w", err)
	}

	captureTS, err := json.Marshal(time.Now().UnixMilli())
	if err != nil {
		return err
	}
	frameID, err := json.Marshal(path)
	if err != nil {
		return err
	}

	message, err := pipeline.ComposeFrame(model.FrameHeader{
		FrameID:   frameID,
		CaptureTS: captureTS,
	}, img)
	if err != nil {
		return xerrors.Errorf("compose frame: %w", err)
	}
	return session.Handle(ctx, pipeline.BinaryMessage, message, send)
}
