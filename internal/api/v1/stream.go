package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/panorama-game/rating-server/internal/api/common"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// Clients only send control frames
	maxClientMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// stream handles GET /v1/leaderboard/ws?pageSize=M.
// It pushes page 0 on connect and again each time a newer snapshot is published.
func (routes *Routes) stream(w http.ResponseWriter, r *http.Request) {
	pageSize, err := routes.parsePageSize(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if pageSize <= 0 {
		common.WriteErrorResponse(w, "invalid pageSize parameter: must be positive", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		slog.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// The stream outlives the request deadline; it ends when the peer goes away
	// or the stream context is done
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stopOnClose := context.AfterFunc(routes.streamCtx, cancel)
	defer stopOnClose()
	go readPump(conn, cancel)

	poll := time.NewTicker(routes.streamPollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var sentVersion uint64
	sent := false
	for {
		if info := routes.service.Info(ctx); !sent || info.SnapshotVersion != sentVersion {
			page, err := routes.service.Page(ctx, 0, pageSize)
			if err != nil {
				slog.Error("Failed to read leaderboard page for stream", "error", err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(page); err != nil {
				slog.Debug("Websocket write failed", "error", err)
				return
			}
			sentVersion = page.SnapshotVersion
			sent = true
		}

		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-poll.C:
		}
	}
}

// readPump consumes control frames and cancels the stream once the peer disconnects
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxClientMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
