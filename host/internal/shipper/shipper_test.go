package shipper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/config"
	"github.com/instrumentkit/instrumentkit/pkg/types"
)

// mockServer records reports and can fail the first N requests.
type mockServer struct {
	mu       sync.Mutex
	received []*types.RunReport
	headers  []http.Header
	failN    int
	failCode int
}

func (m *mockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers = append(m.headers, r.Header.Clone())
	if r.URL.Path != ReportsPath || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if m.failN > 0 {
		m.failN--
		http.Error(w, "mock failure", m.failCode)
		return
	}
	var rep types.RunReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.received = append(m.received, &rep)
	w.WriteHeader(http.StatusAccepted)
}

func (m *mockServer) reports() []*types.RunReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.RunReport, len(m.received))
	copy(out, m.received)
	return out
}

func (m *mockServer) requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.headers)
}

func startTestServer(t *testing.T, srv *mockServer) string {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts.URL
}

func makeReport(id string) *types.RunReport {
	return &types.RunReport{
		ID:        id,
		Device:    "emulator-5554",
		Package:   "android.device.collectors",
		StartedAt: time.Now(),
		Tests:     3,
		Passed:    3,
		Complete:  true,
		Health:    types.Health{Score: 100, State: types.StateHealthy},
	}
}

func hostCfg(endpoint string) config.HostConfig {
	return config.HostConfig{ServerEndpoint: endpoint, BufferSize: 10, SendTimeout: time.Second}
}

func newTestShipper(cfg config.HostConfig) *Shipper {
	s := New(cfg)
	s.retryBase = 10 * time.Millisecond
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestShipper_DeliversReport(t *testing.T) {
	srv := &mockServer{}
	t.Setenv("TEST_INSTRUMENTKIT_KEY", "supersecret")
	cfg := hostCfg(startTestServer(t, srv))
	cfg.ServerAuth = config.AuthConfig{Mode: "apikey", Header: "X-API-Key", KeyEnv: "TEST_INSTRUMENTKIT_KEY"}

	s := newTestShipper(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeReport("run-1"))
	waitFor(t, func() bool { return len(srv.reports()) > 0 })

	reps := srv.reports()
	if len(reps) != 1 {
		t.Fatalf("server received %d reports, want 1", len(reps))
	}
	if reps[0].ID != "run-1" {
		t.Errorf("ID = %q, want %q", reps[0].ID, "run-1")
	}
	if reps[0].Health.State != types.StateHealthy {
		t.Errorf("State = %q, want %q", reps[0].Health.State, types.StateHealthy)
	}
	srv.mu.Lock()
	key := srv.headers[0].Get("X-API-Key")
	srv.mu.Unlock()
	if key != "supersecret" {
		t.Errorf("X-API-Key = %q, want supersecret", key)
	}
}

func TestShipper_BearerToken(t *testing.T) {
	srv := &mockServer{}
	t.Setenv("TEST_INSTRUMENTKIT_TOKEN", "tok")
	cfg := hostCfg(startTestServer(t, srv))
	cfg.ServerAuth = config.AuthConfig{Mode: "bearer", TokenEnv: "TEST_INSTRUMENTKIT_TOKEN"}

	s := newTestShipper(cfg)
	req, err := s.newRequest(context.Background(), makeReport("r"))
	if err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
	if req.URL.Path != ReportsPath {
		t.Errorf("path = %q, want %q", req.URL.Path, ReportsPath)
	}
}

func TestShipper_RetriesTransientErrors(t *testing.T) {
	srv := &mockServer{failN: 2, failCode: http.StatusServiceUnavailable}
	s := newTestShipper(hostCfg(startTestServer(t, srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeReport("run-1"))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(srv.reports()); got != 1 {
		t.Errorf("server received %d reports, want 1", got)
	}
	if got := srv.requests(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestShipper_DiscardsPermanentErrors(t *testing.T) {
	srv := &mockServer{failN: 1, failCode: http.StatusUnauthorized}
	s := newTestShipper(hostCfg(startTestServer(t, srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeReport("rejected"))
	s.Ship(makeReport("accepted"))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	reps := srv.reports()
	if len(reps) != 1 || reps[0].ID != "accepted" {
		t.Errorf("reports = %v, want only accepted", reps)
	}
}

func TestShipper_MultipleReports(t *testing.T) {
	srv := &mockServer{}
	s := newTestShipper(hostCfg(startTestServer(t, srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 5; i++ {
		s.Ship(makeReport("r"))
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(srv.reports()); got != 5 {
		t.Errorf("server received %d reports, want 5", got)
	}
}

func TestShipper_BufferEvictsOldest(t *testing.T) {
	s := New(config.HostConfig{BufferSize: 3})

	ids := []string{"r0", "r1", "r2", "r3", "r4"}
	for _, id := range ids {
		s.Ship(makeReport(id))
	}

	var got []string
	for len(s.buf) > 0 {
		got = append(got, (<-s.buf).ID)
	}
	want := []string{"r2", "r3", "r4"}
	if len(got) != len(want) {
		t.Fatalf("buffer has %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("buffer[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestShipper_FlushTimesOutWithoutRun(t *testing.T) {
	s := New(hostCfg("http://127.0.0.1:1"))
	s.Ship(makeReport("stuck"))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Flush(ctx); err == nil {
		t.Fatal("Flush returned nil with nothing draining the buffer")
	}
}

func TestIsPermanentError(t *testing.T) {
	for code, want := range map[int]bool{400: true, 401: true, 403: true, 404: false, 500: false, 503: false} {
		if got := isPermanentError(&statusError{Code: code}); got != want {
			t.Errorf("isPermanentError(%d) = %v, want %v", code, got, want)
		}
	}
	if isPermanentError(context.DeadlineExceeded) {
		t.Error("transport error treated as permanent")
	}
}

func TestBackoff_Resets(t *testing.T) {
	b := newBackoff(backoffInitial)
	if first := b.next(); first > 2*time.Second {
		t.Errorf("first backoff too large: %v", first)
	}
	for i := 0; i < 10; i++ {
		b.next()
	}
	b.reset()
	if after := b.next(); after > 2*time.Second {
		t.Errorf("backoff after reset too large: %v", after)
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff(backoffInitial)
	for i := 0; i < 50; i++ {
		if d := b.next(); d > backoffMax*5/4 {
			t.Errorf("backoff[%d] = %v, exceeds max plus jitter", i, d)
		}
	}
}

func TestShipper_GracefulShutdown(t *testing.T) {
	s := New(hostCfg("http://127.0.0.1:1"))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
