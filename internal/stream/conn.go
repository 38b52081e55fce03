package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/quakeview/server/internal/dispatcher"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxControlSize = 4096
)

// Transport serves the stream over websocket: deltas go out as binary
// frames, control commands come in as text frames.
type Transport struct {
	hub      *Hub
	controls *dispatcher.Dispatcher
	upgrader ws.Upgrader
	logger   *slog.Logger
}

// NewTransport serves hub. controls may be nil to ignore viewer input.
func NewTransport(hub *Hub, controls *dispatcher.Dispatcher, logger *slog.Logger) *Transport {
	return &Transport{
		hub:      hub,
		controls: controls,
		logger:   logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			// Viewers load the page from anywhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	rcp := t.hub.Join()
	c := &connection{
		conn:   conn,
		rcp:    rcp,
		done:   make(chan struct{}),
		logger: t.logger.With("recipient", rcp.ID),
	}
	c.logger.Info("Viewer connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop(t.controls)

	t.hub.Leave(rcp.ID)
	c.stop()
	c.logger.Info("Viewer disconnected")
}

// connection pairs one websocket with one hub recipient. Only writeLoop
// writes data frames.
type connection struct {
	conn   *ws.Conn
	rcp    *Recipient
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (c *connection) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writeLoop drains the recipient's messages until the reader stops or
// the hub lets the recipient go.
func (c *connection) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.rcp.Done():
			_ = c.conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseTryAgainLater, "stream closed"),
				time.Now().Add(writeWait))
			c.stop()
			return
		case msg := <-c.rcp.Messages():
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("Websocket SetWriteDeadline error", "error", err)
				c.stop()
				return
			}
			if err := c.conn.WriteMessage(ws.BinaryMessage, msg); err != nil {
				c.logger.Warn("Websocket write error", "error", err)
				c.stop()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("Websocket ping failed", "error", err)
				c.stop()
				return
			}
		}
	}
}

// readLoop forwards text frames to the control dispatcher until the
// connection fails.
func (c *connection) readLoop(controls *dispatcher.Dispatcher) {
	c.conn.SetReadLimit(maxControlSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.logger.Warn("Websocket read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != ws.TextMessage || controls == nil {
			continue
		}
		e, err := dispatcher.ParseEvent(c.rcp.ID, data)
		if err != nil {
			c.logger.Debug("Ignoring control message", "raw", string(data), "error", err)
			continue
		}
		if _, err := controls.Dispatch(e); err != nil {
			c.logger.Debug("Control message rejected", "command", e.Command, "error", err)
		}
	}
}
