package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/pipeline"
	"github.com/khaledhikmat/vs-detect/service/codec"
	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/inference"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 32))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testServer(t *testing.T, settings config.Settings, engine inference.IService, stats chan<- model.SessionStats) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(pipeline.ServicesFactory{
		CfgSvc:       config.NewHardCoded(settings),
		CodecSvc:     codec.NewStd(),
		InferenceSvc: engine,
	}, stats)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResponse(conn *websocket.Conn) (map[string]json.RawMessage, error) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected message type %d", messageType)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func emptyEngine() *inference.FakeService {
	return inference.NewFake([]inference.Tensor{{Shape: []int64{1, 0, 85}}}, nil)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		engine inference.IService
		loaded bool
	}{
		{name: "no model", engine: nil, loaded: false},
		{name: "model", engine: emptyEngine(), loaded: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := New(pipeline.ServicesFactory{
				CfgSvc:       config.NewHardCoded(config.Defaults()),
				CodecSvc:     codec.NewStd(),
				InferenceSvc: tc.engine,
			}, nil)

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			var payload map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if payload["status"] != "ok" {
				t.Fatalf("unexpected status field: %v", payload["status"])
			}
			if payload["model_loaded"] != tc.loaded {
				t.Fatalf("unexpected model_loaded: %v", payload["model_loaded"])
			}
			if payload["sessions"].(float64) != 0 {
				t.Fatalf("unexpected sessions: %v", payload["sessions"])
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	_, ts := testServer(t, config.Defaults(), nil, nil)
	conn := dial(t, ts)
	img := testPNG(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("no delimiter here")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := append([]byte(`{"frame_id":7,"capture_ts":"2024-05-01T10:00:00Z"}`+"\n\n"), img...)
	if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp, err := readResponse(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(resp["frame_id"]) != "7" {
		t.Fatalf("unexpected frame_id: %s", resp["frame_id"])
	}
	if string(resp["capture_ts"]) != `"2024-05-01T10:00:00Z"` {
		t.Fatalf("unexpected capture_ts: %s", resp["capture_ts"])
	}
	if string(resp["detections"]) != "[]" {
		t.Fatalf("unexpected detections: %s", resp["detections"])
	}
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	_, ts := testServer(t, config.Defaults(), emptyEngine(), nil)
	img := testPNG(t)

	const clients = 6
	const frames = 4

	conns := make([]*websocket.Conn, clients)
	for i := range conns {
		conns[i] = dial(t, ts)
	}

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer wg.Done()
			for j := 0; j < frames; j++ {
				id := fmt.Sprintf(`"c%d-f%d"`, i, j)
				msg := append([]byte(`{"frame_id":`+id+`}`+"\n\n"), img...)
				if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
					errs <- err
					return
				}
			}
			for j := 0; j < frames; j++ {
				resp, err := readResponse(conn)
				if err != nil {
					errs <- err
					return
				}
				want := fmt.Sprintf(`"c%d-f%d"`, i, j)
				if string(resp["frame_id"]) != want {
					errs <- fmt.Errorf("client %d: got frame_id %s, want %s", i, resp["frame_id"], want)
					return
				}
			}
		}(i, conn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestOversizeMessageClosesConnection(t *testing.T) {
	settings := config.Defaults()
	settings.MaxMessageBytes = 1024
	_, ts := testServer(t, settings, nil, nil)
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 4096)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readResponse(conn); err == nil {
		t.Fatal("expected the connection to be closed")
	}
}

func TestSessionStatsOnClose(t *testing.T) {
	stats := make(chan model.SessionStats, 1)
	srv, ts := testServer(t, config.Defaults(), nil, stats)
	conn := dial(t, ts)

	msg := append([]byte(`{"frame_id":1}`+"\n\n"), testPNG(t)...)
	if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readResponse(conn); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := srv.sessionCount(); n != 1 {
		t.Fatalf("sessions: got %d, want 1", n)
	}
	conn.Close()

	select {
	case st := <-stats:
		if st.ID == "" || st.Messages != 1 || st.Responses != 1 {
			t.Fatalf("unexpected stats: %+v", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session stats")
	}
	if n := srv.sessionCount(); n != 0 {
		t.Fatalf("sessions: got %d, want 0", n)
	}
}
