package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	"go.uber.org/zap"
)

type ConnectionClosedError struct{}

func (e *ConnectionClosedError) Error() string {
	return "Connection to host is closed"
}

type DialExhaustedError struct {
	Attempts int
	Last     error
}

func (e *DialExhaustedError) Error() string {
	return fmt.Sprintf("Could not reach host after %d attempts: %v", e.Attempts, e.Last)
}

func (e *DialExhaustedError) Unwrap() error {
	return e.Last
}

type WebsocketClientParams struct {
	// HostAddress is host:port of the WebSocket host.
	HostAddress string
	Endpoint    string

	ClientId   message.PeerId
	ProtocolId uint64

	Backoff          BackoffParams
	HandshakeTimeout time.Duration

	Logger *zap.Logger
}

// WebsocketClient is a connected, admitted client-side channel to the host.
type WebsocketClient struct {
	id   message.PeerId
	conn *websocket.Conn

	mut_inbox sync.Mutex
	inbox     [][]byte

	mut_outbox sync.Mutex
	outbox     [][]byte
	wake       chan struct{}

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}

	log *zap.Logger
}

func websocketUrl(params WebsocketClientParams) string {
	u := url.URL{Scheme: "ws", Host: params.HostAddress, Path: params.Endpoint}
	return u.String()
}

// DialWebsocketClient connects and runs the handshake, retrying unreachable
// hosts with exponential backoff. A refusal from the host is returned at once
// as a ConnectionRefusedError.
func DialWebsocketClient(ctx context.Context, params WebsocketClientParams) (*WebsocketClient, error) {
	logger := observability.OrDevelopment(params.Logger)
	if params.HandshakeTimeout <= 0 {
		params.HandshakeTimeout = defaultHandshakeTimeout
	}

	log := logger.With(
		zap.String("handler", "WebSocketClient"),
		zap.Uint64("clientId", uint64(params.ClientId)),
	)
	target := websocketUrl(params)

	attempts := 0
	var conn *websocket.Conn
	dial := func() error {
		attempts++
		c, err := dialAndHandshake(ctx, target, params)
		if err != nil {
			var refused *ConnectionRefusedError
			if errors.As(err, &refused) {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, delay time.Duration) {
		log.Info("Host not reachable yet, retrying", zap.Int("attempt", attempts), zap.Duration("delay", delay), zap.Error(err))
	}

	err := backoff.RetryNotify(dial, newDialBackOff(ctx, params.Backoff), notify)
	if err == nil {
		log.Info("Connected to host", zap.String("url", target), zap.Int("attempt", attempts))
		return startWebsocketClient(params.ClientId, conn, log), nil
	}

	var refused *ConnectionRefusedError
	if errors.As(err, &refused) {
		log.Error("Host refused connection", zap.String("reason", refused.Reason))
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, &DialExhaustedError{Attempts: attempts, Last: err}
}

func dialAndHandshake(ctx context.Context, target string, params WebsocketClientParams) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: params.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}

	conn.SetWriteDeadline(time.Now().Add(params.HandshakeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, createConnectClientMsg(uint64(params.ClientId), params.ProtocolId)); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetWriteDeadline(time.Time{})

	conn.SetReadDeadline(time.Now().Add(params.HandshakeTimeout))
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	if msgType != websocket.BinaryMessage {
		conn.Close()
		return nil, &NonBinaryMessage{}
	}

	accepted, reason, err := safeParseVerdictMsg(payload)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !accepted {
		conn.Close()
		return nil, &ConnectionRefusedError{Reason: reason}
	}

	return conn, nil
}

func startWebsocketClient(id message.PeerId, conn *websocket.Conn, log *zap.Logger) *WebsocketClient {
	client := &WebsocketClient{
		id:      id,
		conn:    conn,
		inbox:   make([][]byte, 0, 32),
		outbox:  make([][]byte, 0, 16),
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		log:     log,
	}

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		client.readLoop()
	}()

	go func() {
		defer close(client.done)
		client.writeLoop(readerDone)
	}()

	return client
}

func (c *WebsocketClient) readLoop() {
	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
				c.log.Debug("Reader stopped after local close")
			default:
				c.log.Warn("Lost connection to host", zap.Error(err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		c.mut_inbox.Lock()
		c.inbox = append(c.inbox, payload)
		c.mut_inbox.Unlock()
	}
}

func (c *WebsocketClient) writeLoop(readerDone <-chan struct{}) {
	defer c.conn.Close()

	for {
		select {
		case <-readerDone:
			return
		case <-c.closing:
			c.flush()
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client leaving"), time.Now().Add(writeWait))
			return
		case <-c.wake:
			if err := c.flush(); err != nil {
				c.log.Warn("Write to host failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *WebsocketClient) flush() error {
	c.mut_outbox.Lock()
	pending := c.outbox
	c.outbox = make([][]byte, 0, 16)
	c.mut_outbox.Unlock()

	for _, payload := range pending {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			return err
		}
	}
	return nil
}

func (c *WebsocketClient) PeerId() message.PeerId {
	return c.id
}

func (c *WebsocketClient) TryReceive() ([]byte, bool) {
	c.mut_inbox.Lock()
	defer c.mut_inbox.Unlock()

	if len(c.inbox) == 0 {
		return nil, false
	}
	payload := c.inbox[0]
	c.inbox[0] = nil
	c.inbox = c.inbox[1:]
	return payload, true
}

// Send queues payload for the host. It fails once the connection is gone.
func (c *WebsocketClient) Send(payload []byte) error {
	select {
	case <-c.done:
		return &ConnectionClosedError{}
	case <-c.closing:
		return &ConnectionClosedError{}
	default:
	}

	c.mut_outbox.Lock()
	c.outbox = append(c.outbox, payload)
	c.mut_outbox.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed once the connection has stopped for any reason.
func (c *WebsocketClient) Done() <-chan struct{} {
	return c.done
}

func (c *WebsocketClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
	<-c.done
	return nil
}
