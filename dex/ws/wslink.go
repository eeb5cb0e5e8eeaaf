// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package ws provides a msgjson message link over a websocket connection. Both
// ends of the relay use it: the Go process on the server side of the upgrade
// and tests that dial in as the browser page.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kent-3/keplr/dex"
	"github.com/kent-3/keplr/dex/msgjson"
)

// outBufferSize is the size of the WSLink's buffered channel for outgoing
// messages.
const outBufferSize = 128

const writeWait = 5 * time.Second

// DefaultPingPeriod is used when a LinkConfig does not specify one.
const DefaultPingPeriod = 30 * time.Second

// Origin checks are left to the caller, which knows which origins it serves.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// ErrPeerDisconnected will be returned if Send is called on a disconnected
// link.
const ErrPeerDisconnected = dex.ErrorKind("peer disconnected")

// Connection represents a websocket connection to a remote peer. In practice,
// it is satisfied by *websocket.Conn. For testing, a stub can be used.
type Connection interface {
	Close() error

	SetReadDeadline(t time.Time) error
	ReadMessage() (int, []byte, error)

	SetWriteDeadline(t time.Time) error
	WriteMessage(int, []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// MessageHandler processes an incoming message. A non-nil *msgjson.Error
// returned for a request is sent back to the peer as the response.
type MessageHandler func(*msgjson.Message) *msgjson.Error

// LinkConfig is the configuration for a WSLink.
type LinkConfig struct {
	// Addr is the peer's address, used for logging.
	Addr string
	Conn Connection
	// PingPeriod is how often to ping the peer. Zero means DefaultPingPeriod.
	PingPeriod time.Duration
	Handler    MessageHandler
	Logger     dex.Logger
}

// WSLink is the local, per-connection representation of a peer connection.
type WSLink struct {
	addr       string
	conn       Connection
	pingPeriod time.Duration
	handler    MessageHandler
	log        dex.Logger

	// on is used internally to prevent multiple Close calls on the underlying
	// connections.
	on      atomic.Bool
	quit    context.CancelFunc
	stopped chan struct{}
	outChan chan []byte
	wg      sync.WaitGroup
}

// NewWSLink is a constructor for a new WSLink.
func NewWSLink(cfg *LinkConfig) *WSLink {
	pingPeriod := cfg.PingPeriod
	if pingPeriod == 0 {
		pingPeriod = DefaultPingPeriod
	}
	log := cfg.Logger
	if log == nil {
		log = dex.Disabled
	}
	return &WSLink{
		addr:       cfg.Addr,
		conn:       cfg.Conn,
		pingPeriod: pingPeriod,
		handler:    cfg.Handler,
		log:        log,
		stopped:    make(chan struct{}),
		outChan:    make(chan []byte, outBufferSize),
	}
}

// Send sends the passed Message to the websocket peer. The actual writing of
// the message on the peer's link occurs asynchronously. As such, a nil error
// only indicates that the link is believed to be up and the message was
// successfully marshalled.
func (c *WSLink) Send(msg *msgjson.Message) error {
	if c.Off() {
		return ErrPeerDisconnected
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.outChan <- b:
	case <-c.stopped:
		return ErrPeerDisconnected
	}
	return nil
}

// SendError sends the msgjson.Error to the peer as the response to request id.
func (c *WSLink) SendError(id uint64, rpcErr *msgjson.Error) {
	msg, err := msgjson.NewResponse(id, nil, rpcErr)
	if err != nil {
		c.log.Errorf("SendError: failed to create message: %v", err)
		return
	}
	if err = c.Send(msg); err != nil {
		c.log.Debugf("SendError: failed to send message to peer %s: %v", c.addr, err)
	}
}

// Connect begins processing input and output messages. The returned WaitGroup
// is Done when the link has shut down and the connection is closed.
func (c *WSLink) Connect(ctx context.Context) (*sync.WaitGroup, error) {
	if !c.on.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("attempted to start a running WSLink")
	}
	linkCtx, quit := context.WithCancel(ctx)
	c.quit = quit
	// 2x ping period is a generous initial pong wait. The pong handler set by
	// NewConnection extends it.
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pingPeriod * 2)); err != nil {
		c.stop()
		return nil, fmt.Errorf("failed to set initial read deadline for %v: %w", c.addr, err)
	}

	c.log.Tracef("Starting websocket messaging with peer %s", c.addr)
	c.wg.Add(3)
	go c.inHandler(linkCtx)
	go c.outHandler(linkCtx)
	go c.pingHandler(linkCtx)
	return &c.wg, nil
}

func (c *WSLink) stop() bool {
	if !c.on.CompareAndSwap(true, false) {
		return false
	}
	close(c.stopped)
	c.quit()
	return true
}

// Disconnect begins shutdown of the WSLink, preventing new messages from
// entering the outgoing queue, and ultimately closing the underlying connection
// when all queued messages have been handled. This shutdown process is complete
// when the WaitGroup returned by Connect is Done.
func (c *WSLink) Disconnect() {
	if !c.stop() {
		c.log.Debugf("Disconnect attempted on stopped WSLink.")
	}
	// NOTE: outHandler closes the c.conn on its return.
}

// Done returns a channel that is closed when the link is stopped.
func (c *WSLink) Done() <-chan struct{} {
	return c.stopped
}

// inHandler handles all incoming messages for the websocket connection. It must
// be run as a goroutine.
func (c *WSLink) inHandler(ctx context.Context) {
	defer c.wg.Done()
	defer c.stop()
	for ctx.Err() == nil {
		_, msgBytes, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseGoingAway,
				websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Errorf("Websocket receive error from peer %s: %v", c.addr, err)
			}
			return
		}
		// Failure to decode does not force a disconnect.
		msg, err := msgjson.DecodeMessage(msgBytes)
		if err != nil || msg == nil {
			c.log.Errorf("Failed to parse message from %s: %v", c.addr, err)
			continue
		}
		switch msg.Type {
		case msgjson.Request, msgjson.Response:
			if msg.ID == 0 {
				c.log.Errorf("%s with zero id from %s", msg.Type, c.addr)
				continue
			}
		case msgjson.Notification:
		default:
			c.log.Errorf("Unknown message type %d from %s", msg.Type, c.addr)
			continue
		}
		if rpcErr := c.handler(msg); rpcErr != nil && msg.Type == msgjson.Request {
			c.SendError(msg.ID, rpcErr)
		}
	}
}

// outHandler writes queued messages in order. On shutdown, any messages
// already queued are written before the connection is closed.
func (c *WSLink) outHandler(ctx context.Context) {
	defer c.wg.Done()
	defer c.conn.Close()
	defer c.stop()

	var writeFailed bool
	write := func(b []byte) {
		if writeFailed {
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			c.log.Debugf("Write error for %s: %v", c.addr, err)
			writeFailed = true
			c.stop()
		}
	}

	for {
		select {
		case b := <-c.outChan:
			write(b)
		case <-ctx.Done():
			var n int
			for {
				select {
				case b := <-c.outChan:
					write(b)
					n++
					continue
				default:
				}
				break
			}
			c.log.Debugf("Shut down link for %v after flushing %d queued messages.", c.addr, n)
			return
		}
	}
}

// pingHandler sends periodic pings to the peer.
func (c *WSLink) pingHandler(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			if err != nil {
				c.stop()
				c.log.Debugf("WriteControl ping error: %v", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Off will return true if the link has disconnected.
func (c *WSLink) Off() bool {
	return !c.on.Load()
}

// Addr is the peer address passed to the constructor.
func (c *WSLink) Addr() string {
	return c.addr
}

// NewConnection creates a new Connection by upgrading the http request to a
// websocket. Each pong extends the read deadline by readTimeout.
func NewConnection(w http.ResponseWriter, r *http.Request, readTimeout time.Duration) (Connection, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		var hsErr websocket.HandshakeError
		if !errors.As(err, &hsErr) {
			http.Error(w, "400 Bad Request.", http.StatusBadRequest)
		}
		return nil, err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return ws, nil
}
