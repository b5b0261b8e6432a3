package handler

import (
	"log"
	"net/http"
	"time"

	pkgutils "example.com/multiping/pkg/utils"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// SnapshotStreamHandler pushes a snapshot to a WebSocket client right away and then
// once per interval, until the client goes away.
type SnapshotStreamHandler struct {
	upgrader *websocket.Upgrader
	source   SnapshotSource
	interval time.Duration
}

func NewSnapshotStreamHandler(upgrader *websocket.Upgrader, source SnapshotSource, interval time.Duration) *SnapshotStreamHandler {
	return &SnapshotStreamHandler{
		upgrader: upgrader,
		source:   source,
		interval: interval,
	}
}

func (h *SnapshotStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	markAsServed(r)

	if int64(h.interval) <= 0 {
		panic("interval is not set")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	remote := pkgutils.GetRemoteAddr(r)
	log.Printf("Snapshot stream opened for %s", remote)

	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close WebSocket connection for %s: %v", remote, err)
		}
		log.Printf("Snapshot stream closed for %s", remote)
	}()

	// the client has nothing to say, but reading is how a close is noticed
	connErrCh := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				connErrCh <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		snap, err := takeSnapshot(r.Context(), h.source, h.interval)
		if err != nil {
			log.Printf("Failed to take snapshot for %s: %v", remote, err)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "statistics are not available"),
				time.Now().Add(wsWriteTimeout))
			return
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			log.Printf("Failed to write snapshot to %s: %v", remote, err)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case err := <-connErrCh:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Connection error for %s: %v", remote, err)
			}
			return
		case <-ticker.C:
		}
	}
}
