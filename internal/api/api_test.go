package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/monitor"
	"signal-core/internal/notify"
)

const (
	testSecret = "test-secret"
	testToken  = "123456:ABCDEF"
)

type fakeEngine struct {
	mu      sync.Mutex
	running bool
	starts  int
}

func (f *fakeEngine) Start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeEngine) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) Status() engine.SystemStatus {
	return engine.SystemStatus{Running: f.IsRunning(), Venue: "mexc", Symbols: []string{"APT_USDT"}}
}

func newTestServer(t *testing.T) (*Server, *fakeEngine, *notify.Recorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := &fakeEngine{}
	rec := &notify.Recorder{}
	s := NewServer(Deps{
		Engine:   eng,
		Notifier: rec,
		Bus:      events.NewBus(),
		Recorder: monitor.NewRecorder(),
		Metrics:  monitor.NewSystemMetrics(),
		Logger:   zerolog.Nop(),
	}, Options{JWTSecret: testSecret, BotToken: testToken})
	return s, eng, rec
}

func do(s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestHomeBanner(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(s, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, onlineBanner, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestWebhookStartIsIdempotent(t *testing.T) {
	s, eng, rec := newTestServer(t)
	body := `{"update_id":1,"message":{"text":"/start","chat":{"id":42}}}`

	w := do(s, http.MethodPost, "/"+testToken, body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.True(t, eng.IsRunning())

	w = do(s, http.MethodPost, "/"+testToken, body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, eng.starts)
	assert.Equal(t, []string{startedReply, alreadyRunningReply}, rec.Messages())
}

func TestWebhookStatus(t *testing.T) {
	s, eng, rec := newTestServer(t)
	body := `{"message":{"text":"/status@signal_bot","chat":{"id":42}}}`

	do(s, http.MethodPost, "/"+testToken, body, nil)
	eng.Start()
	do(s, http.MethodPost, "/"+testToken, body, nil)

	assert.Equal(t, []string{stoppedReply, runningReply}, rec.Messages())
}

func TestWebhookIgnoresNoiseButAcknowledges(t *testing.T) {
	s, eng, rec := newTestServer(t)
	for _, body := range []string{`{"message":{"text":"hello"}}`, `{"edited_message":{}}`, `not json`} {
		w := do(s, http.MethodPost, "/"+testToken, body, nil)
		assert.Equal(t, http.StatusOK, w.Code, body)
		assert.JSONEq(t, `{"ok":true}`, w.Body.String(), body)
	}
	assert.False(t, eng.IsRunning())
	assert.Empty(t, rec.Messages())
}

func TestWebhookRequiresToken(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(s, http.MethodPost, "/wrong-token", `{"message":{"text":"/start"}}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusIncludesEngineAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(s, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Engine  engine.SystemStatus     `json:"engine"`
		Metrics monitor.MetricsSnapshot `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Engine.Running)
	assert.Equal(t, "mexc", resp.Engine.Venue)
	assert.NotEmpty(t, resp.Metrics.Uptime)
}

func TestStartRequiresAuth(t *testing.T) {
	s, eng, _ := newTestServer(t)

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"missing", "", "MISSING_TOKEN"},
		{"scheme", "Basic abc", "INVALID_AUTH_HEADER"},
		{"garbage", "Bearer not-a-jwt", "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			if tc.header != "" {
				h.Set("Authorization", tc.header)
			}
			w := do(s, http.MethodPost, "/api/start", "", h)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}

	wrong, _, err := IssueToken("other-secret", "ops", time.Hour)
	require.NoError(t, err)
	w := do(s, http.MethodPost, "/api/start", "", http.Header{"Authorization": {"Bearer " + wrong}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, _, err := IssueToken(testSecret, "ops", -time.Minute)
	require.NoError(t, err)
	w = do(s, http.MethodPost, "/api/start", "", http.Header{"Authorization": {"Bearer " + expired}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.False(t, eng.IsRunning())
}

func TestStartWithToken(t *testing.T) {
	s, eng, rec := newTestServer(t)
	token, exp, err := IssueToken(testSecret, "ops", time.Hour)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	h := http.Header{"Authorization": {"Bearer " + token}}
	w := do(s, http.MethodPost, "/api/start", "", h)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"started":true,"running":true}`, w.Body.String())

	w = do(s, http.MethodPost, "/api/start", "", h)
	assert.JSONEq(t, `{"started":false,"running":true}`, w.Body.String())

	assert.True(t, eng.IsRunning())
	assert.Equal(t, 1, rec.Count(startedReply))
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	_, _, err := IssueToken("", "ops", time.Hour)
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.recorder.RecordSignal("APT_USDT", "LONG")
	w := do(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "signal_core_signals_total")
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(Deps{Engine: &fakeEngine{}, Logger: zerolog.Nop()}, Options{JWTSecret: testSecret, RateLimit: 1, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(s, http.MethodGet, "/health", "", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCommandNormalisation(t *testing.T) {
	assert.Equal(t, "/start", command("/START@my_bot now"))
	assert.Equal(t, "/status", command("  /status "))
	assert.Equal(t, "", command(""))
}

func TestWebsocketStreamsEvents(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Publish until the handler has subscribed and forwards one.
	deadline := time.Now().Add(2 * time.Second)
	got := make(chan streamMessage, 1)
	go func() {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err == nil {
			got <- msg
		}
	}()
	for {
		s.bus.Publish(events.EventSignalRaised, events.Lifecycle{Symbol: "APT_USDT", Side: "LONG"})
		select {
		case msg := <-got:
			assert.Equal(t, events.EventSignalRaised, msg.Event)
			payload, ok := msg.Payload.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "APT_USDT", payload["symbol"])
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no event streamed")
		}
	}
}

func TestHealthServerTracksRunState(t *testing.T) {
	eng := &fakeEngine{}
	bus := events.NewBus()
	h := NewHealthServer(eng, bus, zerolog.Nop())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{Service: HealthServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	eng.Start()
	h.sync()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("health server did not stop")
	}
}
