package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/instrumentkit/instrumentkit/pkg/types"
	"github.com/instrumentkit/instrumentkit/server/internal/api"
	wsHub "github.com/instrumentkit/instrumentkit/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

type fakeSource struct {
	mu      sync.Mutex
	devices []string
	err     error
}

func (f *fakeSource) Summary(context.Context) (api.SummaryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return api.SummaryResponse{}, f.err
	}
	s := api.SummaryResponse{Devices: []api.DeviceResponse{}, GeneratedAt: time.Now().UTC().Format(time.RFC3339)}
	for _, d := range f.devices {
		s.Devices = append(s.Devices, api.DeviceResponse{Device: d, State: types.StateHealthy})
	}
	s.Health.DeviceCount = len(f.devices)
	return s, nil
}

func (f *fakeSource) add(device string) {
	f.mu.Lock()
	f.devices = append(f.devices, device)
	f.mu.Unlock()
}

// startHub serves hub over httptest and runs its loop until cleanup.
func startHub(t *testing.T, src wsHub.Source) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(src, testInterval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return m
}

func summaryOf(t *testing.T, m message) api.SummaryResponse {
	t.Helper()
	if m.Event != wsHub.EventSummary {
		t.Fatalf("event: got %q, want %q", m.Event, wsHub.EventSummary)
	}
	var s api.SummaryResponse
	if err := json.Unmarshal(m.Data, &s); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	return s
}

func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count: got %d, want %d", hub.Count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateSummary(t *testing.T) {
	wsURL, _, _ := startHub(t, &fakeSource{devices: []string{"emulator-5554", "pixel-7"}})

	s := summaryOf(t, readMessage(t, dial(t, wsURL)))
	if len(s.Devices) != 2 {
		t.Errorf("devices: got %d, want 2", len(s.Devices))
	}
	if s.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
}

func TestHub_EmptySource_EmptyDevices(t *testing.T) {
	wsURL, _, _ := startHub(t, &fakeSource{})
	s := summaryOf(t, readMessage(t, dial(t, wsURL)))
	if len(s.Devices) != 0 {
		t.Errorf("devices: got %d, want 0", len(s.Devices))
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, &fakeSource{})

	for i := 0; i < 3; i++ {
		readMessage(t, dial(t, wsURL))
	}
	waitCount(t, hub, 3)
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, &fakeSource{})

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	conn.Close()
	waitCount(t, hub, 0)
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	src := &fakeSource{}
	wsURL, _, _ := startHub(t, src)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	src.add("new-device")

	// Ticks before the add may still be queued.
	for i := 0; i < 10; i++ {
		s := summaryOf(t, readMessage(t, conn))
		if len(s.Devices) == 1 {
			if s.Devices[0].Device != "new-device" {
				t.Errorf("device: got %q, want new-device", s.Devices[0].Device)
			}
			return
		}
	}
	t.Fatal("tick broadcast never carried the new device")
}

func TestHub_PublishReport(t *testing.T) {
	wsURL, hub, _ := startHub(t, &fakeSource{})

	conns := []*websocket.Conn{dial(t, wsURL), dial(t, wsURL)}
	for _, c := range conns {
		readMessage(t, c)
	}
	waitCount(t, hub, 2)

	hub.Publish(&types.RunReport{ID: "run-9", Device: "pixel-7", Tests: 3, Passed: 3})

	for i, c := range conns {
		for {
			m := readMessage(t, c)
			if m.Event == wsHub.EventSummary {
				continue
			}
			if m.Event != wsHub.EventReport {
				t.Fatalf("client %d: event %q", i, m.Event)
			}
			var rep types.RunReport
			if err := json.Unmarshal(m.Data, &rep); err != nil {
				t.Fatalf("client %d: unmarshal: %v", i, err)
			}
			if rep.ID != "run-9" || rep.Device != "pixel-7" {
				t.Errorf("client %d: report = %+v", i, rep)
			}
			break
		}
	}
}

func TestHub_SummaryErrorStillConnects(t *testing.T) {
	wsURL, hub, _ := startHub(t, &fakeSource{err: errors.New("db locked")})
	dial(t, wsURL)
	waitCount(t, hub, 1)

	hub.Publish(&types.RunReport{ID: "r", Device: "d"})
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, &fakeSource{})

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	cancel()
	waitCount(t, hub, 0)
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	srv := httptest.NewServer(wsHub.New(&fakeSource{}, testInterval))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
