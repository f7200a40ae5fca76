package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/anygrow.bridge/internal/alarm"
	"github.com/banshee-data/anygrow.bridge/internal/bridge"
	"github.com/banshee-data/anygrow.bridge/internal/db"
	"github.com/banshee-data/anygrow.bridge/internal/hub"
	"github.com/banshee-data/anygrow.bridge/internal/ledtimer"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
	"github.com/banshee-data/anygrow.bridge/internal/serialmux"
	"github.com/banshee-data/anygrow.bridge/internal/testutil"
	"github.com/banshee-data/anygrow.bridge/internal/timeutil"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server      *Server
	handler     http.Handler
	port        *serialmux.TestableSerialPort
	db          *db.DB
	clock       *timeutil.MockClock
	bridge      *bridge.Bridge
	broadcaster *hub.Broadcaster
}

func setupTestServer(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	clock := timeutil.NewMockClock(testNow)
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"), db.WithClock(clock))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	port := serialmux.NewTestableSerialPort()
	broadcaster := hub.NewBroadcaster()
	b := bridge.New(bridge.Config{
		Link:      serialmux.NewSerialMux(port),
		Store:     database,
		Publisher: broadcaster,
		Alarms:    alarm.NewEvaluator(alarm.DefaultThresholds(), true),
		Clock:     clock,
	})

	s := NewServer(b, database, broadcaster, opts...)
	return &testEnv{
		server:      s,
		handler:     s.ServeMux(),
		port:        port,
		db:          database,
		clock:       clock,
		bridge:      b,
		broadcaster: broadcaster,
	}
}

func (e *testEnv) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) record(t *testing.T, temp, hum, co2, lux float64) {
	t.Helper()
	err := e.db.RecordReading(protocol.SensorReading{
		TemperatureC: temp, HumidityPct: hum, CO2ppm: co2, IlluminationLux: lux,
	})
	if err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestListReadings(t *testing.T) {
	env := setupTestServer(t)
	for i := 0; i < 5; i++ {
		env.clock.Set(testNow.Add(time.Duration(i-4) * time.Hour))
		env.record(t, 20+float64(i), 50, 600, 1000)
	}
	env.clock.Set(testNow)

	w := env.do(http.MethodGet, "/api/sensors", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q", got)
	}
	resp := decode[readingsResponse](t, w)
	if resp.Count != 5 || len(resp.Data) != 5 {
		t.Fatalf("count = %d, rows = %d", resp.Count, len(resp.Data))
	}
	if resp.Data[0].Temperature != 20 || resp.Data[4].Temperature != 24 {
		t.Errorf("rows not oldest first: %+v", resp.Data)
	}
}

func TestListReadings_QueryParams(t *testing.T) {
	env := setupTestServer(t)
	for i := 0; i < 5; i++ {
		env.clock.Set(testNow.Add(time.Duration(i-4) * time.Hour))
		env.record(t, 20+float64(i), 50, 600, 1000)
	}
	env.clock.Set(testNow)

	tests := []struct {
		query string
		want  int
	}{
		{"?hours=2", 3},
		{"?hours=0", 2},
		{"?hours=abc", 5},
		{"?limit=2", 2},
		{"?limit=-1", 1},
		{"?hours=999&limit=zzz", 5},
	}
	for _, tt := range tests {
		w := env.do(http.MethodGet, "/api/sensors"+tt.query, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", tt.query, w.Code)
			continue
		}
		if resp := decode[readingsResponse](t, w); resp.Count != tt.want {
			t.Errorf("%s: count = %d, want %d", tt.query, resp.Count, tt.want)
		}
	}
}

func TestListReadings_Units(t *testing.T) {
	env := setupTestServer(t)
	env.record(t, 25, 50, 600, 1000)

	resp := decode[readingsResponse](t, env.do(http.MethodGet, "/api/sensors?units=F", ""))
	if len(resp.Data) != 1 || resp.Data[0].Temperature != 77 {
		t.Errorf("expected 77F, got %+v", resp.Data)
	}
	if resp.Data[0].Humidity != 50 {
		t.Errorf("only temperature should convert, got %+v", resp.Data[0])
	}

	if w := env.do(http.MethodGet, "/api/sensors?units=kelvin", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListReadings_EmptyIsArray(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(http.MethodGet, "/api/sensors", "")
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", w.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := setupTestServer(t)
	tests := []struct{ method, path string }{
		{http.MethodPost, "/api/sensors"},
		{http.MethodDelete, "/api/sensors/summary"},
		{http.MethodPost, "/api/status"},
		{http.MethodGet, "/api/led"},
		{http.MethodGet, "/api/alarms/reset"},
		{http.MethodPost, "/api/alarms"},
		{http.MethodDelete, "/api/alarms/thresholds"},
		{http.MethodPost, "/api/serial/devices"},
	}
	for _, tt := range tests {
		if w := env.do(tt.method, tt.path, ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, want 405", tt.method, tt.path, w.Code)
		}
	}
}

func TestShowSummary(t *testing.T) {
	env := setupTestServer(t)
	env.record(t, 20, 50, 600, 1000)
	env.record(t, 22, 60, 9999, 1200)

	w := env.do(http.MethodGet, "/api/sensors/summary?hours=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[summaryResponse](t, w)
	if resp.Hours != 1 || resp.Count != 2 {
		t.Errorf("hours = %d, count = %d", resp.Hours, resp.Count)
	}
	if resp.Summary.Temperature.Mean != 21 || resp.Summary.Temperature.Count != 2 {
		t.Errorf("temperature summary %+v", resp.Summary.Temperature)
	}
	if resp.Summary.CO2.Count != 1 || resp.Summary.CO2.Max != 600 {
		t.Errorf("co2 no-data should be excluded: %+v", resp.Summary.CO2)
	}
}

func TestShowStatus(t *testing.T) {
	env := setupTestServer(t)
	env.bridge.HandleChunk(testutil.FrameBytes(testutil.SensorFrame(235, 550, 9999, 800)))

	w := env.do(http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var current map[string]any
	if err := json.Unmarshal(raw["current"], &current); err != nil {
		t.Fatalf("decode current: %v", err)
	}
	if _, ok := current["co2"]; ok {
		t.Errorf("co2 no-data should be omitted, got %v", current)
	}
	if current["temperature"] != 23.5 {
		t.Errorf("temperature = %v", current["temperature"])
	}

	st := decode[bridge.Status](t, env.do(http.MethodGet, "/api/status", ""))
	if st.Readings != 1 || st.Liveness != "idle" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestSetLED(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodPost, "/api/led", url.Values{"mode": {"mood"}}.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if resp := decode[map[string]string](t, w); resp["mode"] != "Mood" {
		t.Errorf("mode = %q", resp["mode"])
	}
	if got := env.port.GetWrittenData(); !bytes.Equal(got, protocol.ModeMood.Frame()) {
		t.Errorf("wrote %x, want %x", got, protocol.ModeMood.Frame())
	}
}

func TestSetLED_UnknownMode(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodPost, "/api/led", url.Values{"mode": {"strobe"}}.Encode())
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if env.port.WriteCount() != 0 {
		t.Error("unknown mode reached the port")
	}
}

func TestSetLED_WriteFailure(t *testing.T) {
	env := setupTestServer(t)
	env.port.WriteError = errors.New("unplugged")

	w := env.do(http.MethodPost, "/api/led", url.Values{"mode": {"on"}}.Encode())
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestLEDTimer_NotRunning(t *testing.T) {
	env := setupTestServer(t)
	if w := env.do(http.MethodGet, "/api/led/timer", ""); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestLEDTimer(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 5, 1, 7, 30, 0, 0, time.Local))
	var env *testEnv
	router := routerFunc(func(mode string) error { return env.bridge.Router().Route(mode) })
	runner := ledtimer.NewRunner(nil, router, clock, 0)
	env = setupTestServer(t, WithLEDTimer(runner))

	w := env.do(http.MethodGet, "/api/led/timer", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"profile":null`) {
		t.Fatalf("unexpected GET %d %s", w.Code, w.Body.String())
	}

	body := `{"name":"day","enabled":true,"segments":[{"start":"06:00","end":"20:00","mode":"On"}]}`
	w = env.do(http.MethodPut, "/api/led/timer", body)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[ledTimerResponse](t, w)
	if resp.Profile == nil || resp.Profile.Name != "day" || resp.LastMode != "On" {
		t.Errorf("unexpected response %+v", resp)
	}
	if got := env.port.GetWrittenData(); !bytes.Equal(got, protocol.ModeOn.Frame()) {
		t.Errorf("timer did not switch the LED on, wrote %x", got)
	}

	bad := `{"enabled":true,"segments":[{"start":"06:00","end":"20:00","mode":"Off"}]}`
	if w := env.do(http.MethodPut, "/api/led/timer", bad); w.Code != http.StatusBadRequest {
		t.Errorf("invalid profile status = %d", w.Code)
	}
	if w := env.do(http.MethodPut, "/api/led/timer", `{"colour":"red"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d", w.Code)
	}

	// the accepted profile is saved and rejected ones are not
	reopened, err := db.NewDB(env.db.Path())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	saved, err := reopened.LEDTimerProfile()
	if err != nil {
		t.Fatalf("LEDTimerProfile failed: %v", err)
	}
	want := &ledtimer.Profile{Name: "day", Enabled: true, Segments: []ledtimer.Segment{{Start: "06:00", End: "20:00", Mode: "On"}}}
	if diff := cmp.Diff(want, saved); diff != "" {
		t.Errorf("saved profile mismatch (-want +got):\n%s", diff)
	}
}

type routerFunc func(string) error

func (f routerFunc) Route(mode string) error { return f(mode) }

func TestAlarms(t *testing.T) {
	env := setupTestServer(t)
	env.bridge.HandleChunk(testutil.FrameBytes(testutil.SensorFrame(310, 500, 600, 1000)))

	if armed := env.bridge.Alarms().Armed(); len(armed) != 1 || armed[0] != alarm.Temperature {
		t.Fatalf("armed = %v", armed)
	}

	w := env.do(http.MethodGet, "/api/alarms", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Count int              `json:"count"`
		Data  []db.AlarmRecord `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []db.AlarmRecord{{TsMillis: testNow.UnixMilli(), Channel: "temperature", Direction: "high", Value: 31}}
	if diff := cmp.Diff(want, resp.Data); diff != "" {
		t.Errorf("alarm history mismatch (-want +got):\n%s", diff)
	}

	w = env.do(http.MethodPost, "/api/alarms/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	if armed := env.bridge.Alarms().Armed(); len(armed) != 0 {
		t.Errorf("reset left %v armed", armed)
	}
}

func TestThresholds(t *testing.T) {
	env := setupTestServer(t)

	got := decode[alarm.Thresholds](t, env.do(http.MethodGet, "/api/alarms/thresholds", ""))
	if diff := cmp.Diff(alarm.DefaultThresholds(), got); diff != "" {
		t.Errorf("default thresholds mismatch (-want +got):\n%s", diff)
	}

	w := env.do(http.MethodPut, "/api/alarms/thresholds", `{"co2":{"max":1500}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", w.Code, w.Body.String())
	}
	if co2 := env.bridge.Alarms().Thresholds().CO2; co2.Min != 400 || co2.Max != 1500 {
		t.Errorf("co2 threshold = %+v", co2)
	}

	w = env.do(http.MethodPut, "/api/alarms/thresholds", `{"humidity":{"min":90,"max":10}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("inverted threshold status = %d", w.Code)
	}
	if env.bridge.Alarms().Thresholds().Humidity.Min != 40 {
		t.Error("rejected thresholds were applied")
	}
	if w := env.do(http.MethodPut, "/api/alarms/thresholds", ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d", w.Code)
	}
}

func TestListSerialDevices(t *testing.T) {
	env := setupTestServer(t, WithPortLister(func() ([]string, error) {
		return []string{"/dev/ttyUSB0", "/dev/ttyACM1", "/dev/ttyS0"}, nil
	}))

	w := env.do(http.MethodGet, "/api/serial/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := []SerialDeviceInfo{
		{PortPath: "/dev/ttyACM1", FriendlyName: "USB CDC Device (ttyACM1)"},
		{PortPath: "/dev/ttyS0", FriendlyName: "ttyS0"},
		{PortPath: "/dev/ttyUSB0", FriendlyName: "USB Serial Adapter (ttyUSB0)"},
	}
	if diff := cmp.Diff(want, decode[[]SerialDeviceInfo](t, w)); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}

	failing := setupTestServer(t, WithPortLister(func() ([]string, error) { return nil, errors.New("no sysfs") }))
	if w := failing.do(http.MethodGet, "/api/serial/devices", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestWebSocket(t *testing.T) {
	env := setupTestServer(t)
	srv := httptest.NewServer(LoggingMiddleware(env.handler))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return env.broadcaster.Count() == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte("serial_write:on")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitFor(t, func() bool { return env.port.WriteCount() == 1 })

	frame := testutil.SensorFrame(240, 500, 600, 1000)
	env.bridge.HandleChunk(testutil.FrameBytes(frame))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(msg) != bridge.FramePrefix+frame {
		t.Errorf("got %q", msg)
	}
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	w := httptest.NewRecorder()
	LoggingMiddleware(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
}

func TestStatusCodeColor(t *testing.T) {
	if got := statusCodeColor(200); got != colorBoldGreen+"200"+colorReset {
		t.Errorf("200 -> %q", got)
	}
	if got := statusCodeColor(503); got != colorBoldRed+"503"+colorReset {
		t.Errorf("503 -> %q", got)
	}
	if got := statusCodeColor(101); got != "101" {
		t.Errorf("101 -> %q", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
