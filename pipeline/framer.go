package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/service/lgr"
)

// EncodedFrame is a captured video frame, JPEG encoded and ready to be
// wrapped with ComposeFrame.
type EncodedFrame struct {
	Seq       int
	CaptureTS int64
	Image     []byte
}

// Framer reads frames from a video source (file, RTSP URL or device index)
// and sends every nth one to frames until the source ends or canxCtx is
// cancelled. frames is closed on return.
func Framer(canxCtx context.Context, source string, every int, frames chan<- EncodedFrame) error {
	defer close(frames)

	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return xerrors.Errorf("open video source %s: %w", source, err)
	}
	defer capture.Close()

	if every < 1 {
		every = 1
	}

	var startTime = time.Now()
	var read = 0
	var sent = 0
	var skippedFrames = 0
	var errors = 0

	defer func() {
		lgr.Logger.Info("framer stopped",
			slog.String("source", source),
			slog.Int("frames", read),
			slog.Int("sent", sent),
			slog.Int("skipped", skippedFrames),
			slog.Int("errors", errors),
			slog.Duration("uptime", time.Since(startTime)),
		)
	}()

	img := gocv.NewMat()
	defer img.Close() // Crucial to close the image to avoid memory leaks

	for {
		if canxCtx.Err() != nil {
			return nil
		}

		if ok := capture.Read(&img); !ok {
			// end of stream
			return nil
		}
		captureTS := time.Now().UnixMilli()
		if img.Empty() {
			errors++
			continue
		}

		read++
		if read%every != 0 {
			skippedFrames++
			continue
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
		if err != nil {
			errors++
			lgr.Logger.Debug("frame encode failed", slog.Int("seq", read), slog.Any("error", err))
			continue
		}
		data := bytes.Clone(buf.GetBytes())
		buf.Close()

		select {
		case <-canxCtx.Done():
			return nil
		case frames <- EncodedFrame{Seq: read, CaptureTS: captureTS, Image: data}:
			sent++
		}
	}
}
