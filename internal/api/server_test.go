package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/iotmon/internal/device"
	"github.com/nerrad567/iotmon/internal/infrastructure/config"
	"github.com/nerrad567/iotmon/internal/infrastructure/database"
	"github.com/nerrad567/iotmon/internal/infrastructure/logging"
	"github.com/nerrad567/iotmon/internal/monitor"
	_ "github.com/nerrad567/iotmon/migrations"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStatus struct{ report monitor.Report }

func (f fakeStatus) LastReport() monitor.Report { return f.report }

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	devices *device.SQLiteRepository
}

// testServer creates a Server over a migrated SQLite database holding two
// devices, one of which has gone DOWN.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "iotmon.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := device.NewSQLiteRepository(db.DB)
	ctx := context.Background()
	if err := repo.ReplaceAll(ctx, []device.Device{
		device.NewDevice("192.168.1.10", "Thermostat", 0, t0),
		device.NewDevice("192.168.1.20", "Garage camera", 0, t0),
	}, t0); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	cam, err := repo.Get(ctx, "192.168.1.20")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	dev := *cam
	for i, reachable := range []bool{true, false} {
		out := device.Evaluate(dev, reachable, t0.Add(time.Duration(i+1)*time.Minute), device.Policy{})
		if _, err := repo.Apply(ctx, out); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		dev = out.Device
	}

	log, err := logging.New(config.LoggingConfig{Level: "error", Output: "discard"}, "test")
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:      log,
		Devices:     repo,
		Transitions: device.NewSQLiteTransitionLog(db.DB),
		Status:      fakeStatus{report: monitor.Report{CycleID: "cycle-1", Probed: 2}},
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	hubCtx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(hubCtx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return &testEnv{srv: srv, http: ts, devices: repo}
}

func getJSON(t *testing.T, url string, wantStatus int, v any) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp
}

func TestNew_RequiresDependencies(t *testing.T) {
	log := logging.Default()

	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger expected error")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without repositories expected error")
	}
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	var body struct {
		Status    string         `json:"status"`
		Version   string         `json:"version"`
		LastCycle monitor.Report `json:"last_cycle"`
	}
	resp := getJSON(t, env.http.URL+"/api/v1/health", http.StatusOK, &body)

	if body.Status != "ok" || body.Version != "test" {
		t.Errorf("health = %+v", body)
	}
	if body.LastCycle.CycleID != "cycle-1" || body.LastCycle.Probed != 2 {
		t.Errorf("last_cycle = %+v", body.LastCycle)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	env := testServer(t)

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want client value", got)
	}
}

func TestListDevices(t *testing.T) {
	env := testServer(t)

	var body struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	getJSON(t, env.http.URL+"/api/v1/devices", http.StatusOK, &body)

	if body.Count != 2 || len(body.Devices) != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	if body.Devices[0].Address != "192.168.1.10" {
		t.Errorf("first device = %s, want address order", body.Devices[0].Address)
	}
}

func TestListDevices_StateFilter(t *testing.T) {
	env := testServer(t)

	var body struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	getJSON(t, env.http.URL+"/api/v1/devices?state=down", http.StatusOK, &body)

	if body.Count != 1 || body.Devices[0].Address != "192.168.1.20" {
		t.Errorf("DOWN devices = %+v", body.Devices)
	}

	getJSON(t, env.http.URL+"/api/v1/devices?state=sideways", http.StatusBadRequest, nil)
}

func TestGetDevice(t *testing.T) {
	env := testServer(t)

	var dev device.Device
	getJSON(t, env.http.URL+"/api/v1/devices/192.168.1.20", http.StatusOK, &dev)
	if dev.State != device.StateDown || dev.Description != "Garage camera" {
		t.Errorf("device = %+v", dev)
	}

	var apiErr Error
	getJSON(t, env.http.URL+"/api/v1/devices/10.9.9.9", http.StatusNotFound, &apiErr)
	if apiErr.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", apiErr.Code, ErrCodeNotFound)
	}
}

func TestDeviceTransitions(t *testing.T) {
	env := testServer(t)

	var body struct {
		Transitions []device.Transition `json:"transitions"`
		Count       int                 `json:"count"`
	}
	getJSON(t, env.http.URL+"/api/v1/devices/192.168.1.20/transitions", http.StatusOK, &body)

	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	// Newest first.
	if body.Transitions[0].NewState != device.StateDown || body.Transitions[0].Notification != device.NotifyDown {
		t.Errorf("newest transition = %+v", body.Transitions[0])
	}

	getJSON(t, env.http.URL+"/api/v1/devices/192.168.1.20/transitions?limit=1", http.StatusOK, &body)
	if body.Count != 1 {
		t.Errorf("limited count = %d, want 1", body.Count)
	}

	getJSON(t, env.http.URL+"/api/v1/devices/192.168.1.20/transitions?limit=zero", http.StatusBadRequest, nil)
	getJSON(t, env.http.URL+"/api/v1/devices/10.9.9.9/transitions", http.StatusNotFound, nil)
}

func TestListTransitions(t *testing.T) {
	env := testServer(t)

	var body struct {
		Count int `json:"count"`
	}
	getJSON(t, env.http.URL+"/api/v1/transitions", http.StatusOK, &body)
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t)

	handler := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// connectWebSocket dials the test server and subscribes to transitions.
func connectWebSocket(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{ChannelTransition}}}
	if err := ws.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe write error = %v", err)
	}

	var ack WSMessage
	readMessage(t, ws, &ack)
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("subscribe ack = %+v", ack)
	}
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := ws.ReadJSON(v); err != nil {
		t.Fatalf("websocket read error = %v", err)
	}
}

func TestWebSocket_TransitionEvent(t *testing.T) {
	env := testServer(t)
	ws := connectWebSocket(t, env)

	env.srv.Hub().ObserveTransition(context.Background(), device.Transition{
		ID:            9,
		CreatedAt:     t0,
		Address:       "192.168.1.20",
		Description:   "Garage camera",
		PreviousState: device.StateDown,
		NewState:      device.StateUp,
		Notification:  device.NotifyRecovered,
	})

	var event struct {
		Type      string            `json:"type"`
		EventType string            `json:"event_type"`
		Payload   device.Transition `json:"payload"`
	}
	readMessage(t, ws, &event)

	if event.Type != WSTypeEvent || event.EventType != ChannelTransition {
		t.Errorf("event = %+v", event)
	}
	if event.Payload.ID != 9 || event.Payload.NewState != device.StateUp {
		t.Errorf("payload = %+v", event.Payload)
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	env := testServer(t)
	ws := connectWebSocket(t, env)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("write error = %v", err)
	}
	var pong WSMessage
	readMessage(t, ws, &pong)
	if pong.Type != WSTypePong || pong.ID != "p" {
		t.Errorf("pong = %+v", pong)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write error = %v", err)
	}
	var errMsg WSMessage
	readMessage(t, ws, &errMsg)
	if errMsg.Type != WSTypeError {
		t.Errorf("response to invalid JSON = %+v, want error", errMsg)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start expected error")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if env.srv.Addr() == "" {
		t.Fatal("Addr() empty after Start")
	}

	getJSON(t, "http://"+env.srv.Addr()+"/api/v1/health", http.StatusOK, nil)

	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
