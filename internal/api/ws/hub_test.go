package ws_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/shake-couplet/internal/api/ws"
	"github.com/oshokin/shake-couplet/internal/content"
	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/shake"
)

type fixedIntn int

func (f fixedIntn) IntN(int) int { return int(f) }

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// startHub runs a detector with a zero debounce window and a hub following its shakes.
func startHub(t *testing.T, threshold float64) (*ws.Hub, *shake.Detector, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	bus := shake.NewBus()

	detector, err := shake.New(ctx, bus, nil, shake.WithThreshold(threshold), shake.WithTimeout(0))
	require.NoError(t, err)
	require.NoError(t, detector.Start())

	hub := ws.NewHub(ctx, detector, fixedIntn(4))
	followed := make(chan struct{})

	go func() {
		defer close(followed)
		hub.Follow(bus.Listen(ctx, 4))
	}()

	server := httptest.NewServer(hub.Handler())

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-followed
		detector.Stop()
	})

	return hub, detector, server
}

func TestHub_BrowserShakeRoundTrip(t *testing.T) {
	t.Parallel()

	hub, _, server := startHub(t, shake.DefaultThreshold)

	conn := dial(t, server)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(time.Millisecond)

	require.NoError(t, conn.WriteJSON(ws.Inbound{Type: ws.TypeMotion, Sample: motion.Sample{Z: 9.8}}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(ws.Inbound{Type: "hello"}))
	require.NoError(t, conn.WriteJSON(ws.Inbound{Type: ws.TypeMotion, Sample: motion.Sample{X: -20, Z: 30}}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg ws.Outbound
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, ws.TypeShake, msg.Type)
	require.Equal(t, motion.ShakeEventName, msg.Event.Name)
	require.Equal(t, 5, msg.Couplet.ID)

	require.Eventually(t, func() bool {
		samples, shakes := hub.Stats()
		return samples == 2 && shakes == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHub_CloseDisconnectsPages(t *testing.T) {
	t.Parallel()

	hub, _, server := startHub(t, shake.DefaultThreshold)

	conn := dial(t, server)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Close()
	require.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestHandler_StaticAndAPI(t *testing.T) {
	t.Parallel()

	_, _, server := startHub(t, shake.DefaultThreshold)

	get := func(path string) (int, string) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)

		resp, err := server.Client().Do(req)
		require.NoError(t, err)

		defer func() {
			_ = resp.Body.Close()
		}()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		return resp.StatusCode, string(body)
	}

	code, body := get("/")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "page-2")

	code, body = get("/app.js")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "devicemotion")

	code, body = get("/api/couplets")
	require.Equal(t, http.StatusOK, code)

	var couplets []content.Couplet
	require.NoError(t, json.Unmarshal([]byte(body), &couplets))
	require.Len(t, couplets, len(content.IDs()))

	code, body = get("/stats")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "clients 0")
}

// TestHub_PagesHaveSeparateBaselines verifies two resting phones tilted in
// opposite directions do not add up to a shake.
func TestHub_PagesHaveSeparateBaselines(t *testing.T) {
	t.Parallel()

	hub, detector, server := startHub(t, 10)

	first := dial(t, server)
	second := dial(t, server)

	require.Eventually(t, func() bool {
		return hub.Clients() == 2 && detector.Snapshot().Streams == 2
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(time.Millisecond)

	for range 10 {
		require.NoError(t, first.WriteJSON(ws.Inbound{Type: ws.TypeMotion, Sample: motion.Sample{X: 6.9, Y: 6.9}}))
		require.NoError(t, second.WriteJSON(ws.Inbound{Type: ws.TypeMotion, Sample: motion.Sample{X: -6.9, Y: -6.9}}))
	}

	require.Eventually(t, func() bool {
		samples, _ := hub.Stats()
		return samples == 20
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, detector.Snapshot().Emitted)

	// A real shake of one phone still reaches both pages.
	require.NoError(t, first.WriteJSON(ws.Inbound{Type: ws.TypeMotion, Sample: motion.Sample{X: -6.9, Y: -6.9}}))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var msg ws.Outbound
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, ws.TypeShake, msg.Type)
	}

	require.Equal(t, uint64(1), detector.Snapshot().Emitted)
}

func TestHub_FollowEndsWithChannel(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub(context.Background(), nil, nil)
	events := make(chan motion.Event, 2)
	events <- motion.NewEvent(time.Now(), 1)
	events <- motion.NewEvent(time.Now(), 2)
	close(events)

	hub.Follow(events)

	_, shakes := hub.Stats()
	require.Equal(t, uint64(2), shakes)
}
