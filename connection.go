package hrpc

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn represents a single WebSocket connection. Each text message is one
// decode, dispatch and encode cycle against the same engine as the HTTP
// binding. Closing the connection cancels every in-flight dispatch.
type Conn struct {
	ws     *websocket.Conn
	server *Server
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newConn(ws *websocket.Conn, server *Server, parent context.Context) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		ws:     ws,
		server: server,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
	}
}

// readPump reads messages until the connection drops, dispatching each on
// its own goroutine so slow calls do not block the read loop.
func (c *Conn) readPump() {
	defer func() {
		c.cancel()
		c.wg.Wait()
		close(c.send)
		c.ws.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.wg.Add(1)
		go c.handleMessage(data)
	}
}

// writePump writes encoded responses to the socket.
func (c *Conn) writePump() {
	defer c.ws.Close()

	for data := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (c *Conn) handleMessage(data []byte) {
	defer c.wg.Done()

	out, err := c.server.dispatcher.DispatchRaw(c.ctx, data)
	if err != nil {
		c.server.logger.Error().Err(err).Msg("failed to encode response")
		return
	}
	// Notifications and cancelled dispatches emit nothing.
	if out == nil || c.ctx.Err() != nil {
		return
	}

	select {
	case c.send <- out:
	case <-c.ctx.Done():
	}
}
