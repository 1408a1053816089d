package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nodeport-labs/swapd/internal/coordinator"
)

const writeTimeout = 10 * time.Second

// Hub streams coordinator snapshots to websocket clients. The wallet UI
// renders {currentQuote, currentExecution, error} from this feed instead of
// registering callbacks on the coordinator.
type Hub struct {
	logger   *zap.Logger
	coord    *coordinator.Coordinator
	upgrader websocket.Upgrader
}

func NewHub(logger *zap.Logger, coord *coordinator.Coordinator) *Hub {
	return &Hub{
		logger: logger,
		coord:  coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API is consumed by the wallet's own UI shell.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and pushes every state transition until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream.upgrade_failed", zap.Error(err))
		return
	}
	defer conn.Close() //nolint:errcheck

	snapshots, cancel := h.coord.Subscribe()
	defer cancel()

	done := make(chan struct{})

	// Reader pump: we never expect client messages, but reading is required
	// to notice the close frame.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("stream.client_connected",
		zap.String("remote", conn.RemoteAddr().String()))

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Debug("stream.write_failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
