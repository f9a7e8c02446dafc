package mode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/lgr"
)

// Feed streams a video source to a detection server and prints every
// response it receives as a JSON line. Usage: feed <source> [ws-url] [every].
func Feed(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) == 0 {
		return xerrors.New("feed mode needs a video source")
	}
	source := args[0]
	url := fmt.Sprintf("ws://localhost:%d/", svcs.CfgSvc.GetPort())
	if len(args) > 1 {
		url = args[1]
	}
	every := 1
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			return xerrors.Errorf("invalid frame interval %q", args[2])
		}
		every = n
	}

	feedCtx, feedCancel := context.WithCancel(canxCtx)
	defer feedCancel()

	conn, _, err := websocket.DefaultDialer.DialContext(feedCtx, url, nil)
	if err != nil {
		return xerrors.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	frames := make(chan pipeline.EncodedFrame, 4)
	framerResult := make(chan error, 1)
	go func() {
		framerResult <- pipeline.Framer(feedCtx, source, every, frames)
	}()

	received := make(chan int, 1)
	go func() {
		received <- printResponses(conn, os.Stdout)
	}()

	sent := 0
	for f := range frames {
		message, err := pipeline.ComposeFrame(model.FrameHeader{
			FrameID:   json.RawMessage(strconv.Itoa(f.Seq)),
			CaptureTS: json.RawMessage(strconv.FormatInt(f.CaptureTS, 10)),
		}, f.Image)
		if err != nil {
			return xerrors.Errorf("compose frame: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
			procError(svcs.DataSvc, model.GenError("feed",
				err,
				map[string]interface{}{
					"url": url,
				},
				"error sending frame"))
			return xerrors.Errorf("send frame %d: %w", f.Seq, err)
		}
		sent++
	}

	if err := <-framerResult; err != nil {
		return err
	}

	// The server answers every frame before it answers the close
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	wait := time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second
	var got int
	select {
	case got = <-received:
	case <-time.After(wait):
		lgr.Logger.Warn("timed out waiting for responses", slog.Duration("period", wait))
	}

	_, _ = color.New(color.FgGreen).Fprintf(os.Stderr, "%d frames sent, %d responses\n", sent, got)
	return nil
}

func printResponses(conn *websocket.Conn, out io.Writer) int {
	n := 0
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return n
		}
		if messageType != websocket.TextMessage {
			continue
		}
		n++
		_, _ = out.Write(append(payload, '\n'))
	}
}
