package ipc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MoveReply answers one websocket move message. Exactly one of Decision and
// Error is set.
type MoveReply struct {
	RequestID string        `json:"request_id,omitempty"`
	Decision  *DecisionView `json:"decision,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
}

type wsConn struct {
	ws   *websocket.Conn
	send chan []byte
}

// MoveWS handles GET /api/v1/move/ws. Each text message is a MoveRequest;
// requests are decided concurrently and replies carry the caller's
// request_id, so they may arrive out of order.
func (h *Handler) MoveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger().Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &wsConn{ws: ws, send: make(chan []byte, 64)}
	go c.writePump()
	h.readPump(r.Context(), clientKey(r), c)
}

func (h *Handler) readPump(parent context.Context, client string, c *wsConn) {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		close(c.send)
	}()

	c.ws.SetReadLimit(maxMoveBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger().Warn("websocket read failed", "err", err)
			}
			return
		}

		var req MoveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(ctx, MoveReply{Error: &APIError{Code: 400, Message: "invalid json"}})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := MoveReply{RequestID: req.RequestID}
			view, err := h.decide(ctx, client, req)
			if err != nil {
				_, body := errorStatus(err)
				reply.Error = &body
			} else {
				reply.Decision = view
			}
			c.reply(ctx, reply)
		}()
	}
}

// reply queues a message for the writer. It gives up once the connection is
// closing.
func (c *wsConn) reply(ctx context.Context, out MoveReply) {
	b, _ := json.Marshal(out)
	select {
	case c.send <- b:
	case <-ctx.Done():
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
