package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"plant_monitor/internal/hub"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/models"
	"plant_monitor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// --- parseInterval unit tests ---

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil, nil, logger.Nop())

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 1 * time.Second},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=20s", 1 * time.Second},
		{"interval_ms_too_large", "/ws?interval_ms=20000", 1 * time.Second},
		{"interval_invalid_string", "/ws?interval=bogus", 1 * time.Second},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", 1 * time.Second},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

// --- websocket integration tests ---

func dialWS(t *testing.T, srvURL, path, rawQuery string) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(srvURL)
	u.Scheme = "ws"
	u.Path = path
	u.RawQuery = rawQuery

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocket_MachinesStream_InitialAndPeriodic(t *testing.T) {
	mon := &mockMonitoring{statuses: []models.Reading{
		{PlantID: 1, MachineID: 1, Temperature: 61.2, MachineStatus: models.StatusOnline},
		{PlantID: 1, MachineID: 2, MachineStatus: models.StatusOffline},
	}}
	s := &service.Service{Monitoring: mon}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(s, nil, nil, logger.Nop())
	r.GET("/ws", h.wsMachines)

	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/ws", "interval_ms=20")

	type envelope struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}

	// Initial snapshot arrives without waiting for a tick.
	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if env.Type != "machines" || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var readings []models.Reading
	if err := json.Unmarshal(env.Data, &readings); err != nil {
		t.Fatalf("unmarshal readings: %v", err)
	}
	if len(readings) != 2 || readings[0].Temperature != 61.2 {
		t.Fatalf("unexpected readings: %+v", readings)
	}

	// A subsequent tick pushes again.
	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	env = envelope{}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if env.Type != "machines" {
		t.Fatalf("second envelope type: %q", env.Type)
	}
}

func TestWebSocket_NotificationsStream(t *testing.T) {
	stream := hub.New(logger.Nop())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(&service.Service{}, stream, nil, logger.Nop())
	r.GET("/ws/notifications", h.wsNotifications)

	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/ws/notifications", "")

	// Wait for the handler to register with the hub before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for stream.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := models.Notification{
		ID:        "n-1",
		PlantID:   1,
		MachineID: 4,
		Parameter: "temperature",
		Threshold: 80,
		Severity:  models.SeverityWarning,
		Status:    models.NotificationUnresolved,
	}
	stream.BroadcastNotification(want)

	type envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if env.Type != "notification" {
		t.Fatalf("envelope type: %q", env.Type)
	}
	var got models.Notification
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}
	if got.ID != want.ID || got.Severity != want.Severity || got.Parameter != want.Parameter {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
