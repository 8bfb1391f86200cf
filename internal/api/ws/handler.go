package ws

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/oshokin/shake-couplet/internal/content"
	"github.com/oshokin/shake-couplet/internal/logger"
)

//go:embed web
var webFiles embed.FS

// Handler serves the page, the WebSocket endpoint and a couple of JSON helpers.
//
//	/               embedded page
//	/ws             sample upload and shake broadcast
//	/api/couplets   couplet table
//	/stats          plain-text counters
func (h *Hub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		// Phones load the page from the same host, but tunnels and
		// port-forwarding rewrite the origin.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	static, err := fs.Sub(webFiles, "web")
	if err != nil {
		panic(err) // The embedded tree is fixed at compile time.
	}

	mux := http.NewServeMux()
	mux.Handle("GET /", http.FileServerFS(static))

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.DebugKV(h.ctx, "WebSocket upgrade failed", "error", err)
			return
		}

		h.serve(conn)
	})

	mux.HandleFunc("GET /api/couplets", func(w http.ResponseWriter, _ *http.Request) {
		couplets := make([]content.Couplet, 0, len(content.IDs()))

		for _, id := range content.IDs() {
			c, err := content.Lookup(id)
			if err != nil {
				continue
			}

			couplets = append(couplets, c)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if err := json.NewEncoder(w).Encode(couplets); err != nil {
			logger.WarnKV(h.ctx, "Failed to write couplets", "error", err)
		}
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		samples, shakes := h.Stats()

		_, _ = fmt.Fprintf(w, "clients %d\nsamples %d\nshakes %d\n", h.Clients(), samples, shakes)
	})

	return mux
}
