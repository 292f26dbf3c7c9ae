package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pactlog/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// SubscribeGoal streams committed goal snapshots over a websocket. The
// current snapshot is sent immediately after the upgrade so a client
// never has to race the first update.
func (a *API) SubscribeGoal(c *gin.Context) {
	if a.hub == nil {
		respondError(c, http.StatusServiceUnavailable, "realtime updates disabled")
		return
	}

	goal, err := a.goals.Get(c.Param("id"), time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warnw("websocket upgrade failed", "goal_id", goal.ID, "error", err)
		return
	}

	sub := a.hub.Subscribe(goal.ID)
	defer func() {
		a.hub.Unsubscribe(sub)
		conn.Close()
	}()

	initial, err := json.Marshal(realtime.Snapshot(goal))
	if err != nil {
		a.log.Warnw("marshal initial snapshot", "goal_id", goal.ID, "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
		return
	}

	// Read pump: we never expect client messages, but reading is how we
	// learn about close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case raw, ok := <-sub.C:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
