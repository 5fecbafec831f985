package api

import (
	"net/http"
	"time"

	"SmartFlow/internal/usecase"
	xhttp "SmartFlow/pkg/http"
	xlogger "SmartFlow/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream pushes every new evaluation as a JSON text frame. The optional
// symbol query parameter filters the stream to one symbol; buffer sizes the
// per-client queue.
func (h *StateEchoHandler) Stream(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	evs, cancel := h.state.Subscribe(xhttp.QueryInt(c, "buffer", 64, 1, 1024))
	defer cancel()

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	h.logger.Debug("stream client connected", xlogger.String("remote", c.RealIP()), xlogger.String("symbol", symbol))
	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-evs:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return nil
			}
			if symbol != "" && ev.Symbol != symbol {
				continue
			}
			if err := writeEvaluation(conn, ev); err != nil {
				h.logger.Debug("stream write failed", xlogger.Error(err))
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}

func writeEvaluation(conn *websocket.Conn, ev usecase.Evaluation) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

// readPump drains client frames so control messages are processed, and
// closes done when the client goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
