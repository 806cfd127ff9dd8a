package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	utils "github.com/sessamekesh/peersync/pkg/util"
	"go.uber.org/zap"
)

const (
	websocketHandlerName = "WebSocket"

	defaultHandshakeTimeout = 5 * time.Second
	pongWait                = 60 * time.Second
	pingPeriod              = pongWait * 9 / 10
	writeWait               = 10 * time.Second
)

type OriginPolicy struct {
	AllowAllHosts    bool
	AllowlistedHosts []string
	DenylistedHosts  []string
}

func (p OriginPolicy) Allows(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if utils.Contains(origin, p.DenylistedHosts) {
		return false
	}

	if p.AllowAllHosts {
		return true
	}

	return utils.Contains(origin, p.AllowlistedHosts)
}

type WebsocketHostParams struct {
	ListenAddress  string
	ListenEndpoint string

	// MetricsEndpoint and MetricsHandler are optional; when both are set the
	// handler is mounted next to the WebSocket endpoint.
	MetricsEndpoint string
	MetricsHandler  http.Handler

	Origins OriginPolicy

	MaxReadMessageSize int64
	HandshakeTimeout   time.Duration

	Logger *zap.Logger
}

// WebsocketHost accepts WebSocket peers and feeds them into a PeerHub.
type WebsocketHost struct {
	upgrader *websocket.Upgrader
	params   WebsocketHostParams
	hub      *PeerHub

	mut_server sync.Mutex
	server     *http.Server
	listener   net.Listener
	done       chan struct{}

	log       *zap.Logger
	stringGen *utils.RandomStringGenerator
}

func CreateWebsocketHost(hub *PeerHub, params WebsocketHostParams) (*WebsocketHost, error) {
	logger := observability.OrDevelopment(params.Logger)
	if hub == nil {
		return nil, errors.New("websocket host needs a peer hub")
	}
	if !strings.HasPrefix(params.ListenEndpoint, "/") {
		return nil, errors.New("websocket listen endpoint must start with '/'")
	}
	if params.HandshakeTimeout <= 0 {
		params.HandshakeTimeout = defaultHandshakeTimeout
	}
	if params.MaxReadMessageSize <= 0 {
		params.MaxReadMessageSize = message.MaxPayloadSize
	}

	return &WebsocketHost{
		upgrader: &websocket.Upgrader{
			CheckOrigin: params.Origins.Allows,
		},
		params: params,
		hub:    hub,
		done:   make(chan struct{}),

		log:       logger.With(zap.String("handler", websocketHandlerName)),
		stringGen: utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
	}, nil
}

// Handler returns the HTTP routes served by the host. Connections it accepts
// stop when ctx is cancelled.
func (ws *WebsocketHost) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ws.params.ListenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		ws.onWsRequest(ctx, w, r)
	})
	if ws.params.MetricsEndpoint != "" && ws.params.MetricsHandler != nil {
		mux.Handle(ws.params.MetricsEndpoint, ws.params.MetricsHandler)
	}
	return mux
}

// Start binds the listen address and serves in the background until ctx is
// cancelled. A bind failure is returned immediately.
func (ws *WebsocketHost) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", ws.params.ListenAddress)
	if err != nil {
		ws.log.Error("Failed to bind WebSocket listener", zap.String("address", ws.params.ListenAddress), zap.Error(err))
		return err
	}

	server := &http.Server{
		Handler:           ws.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	func() {
		ws.mut_server.Lock()
		defer ws.mut_server.Unlock()
		ws.server = server
		ws.listener = listener
	}()

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()

		ws.log.Info("Starting WebSocket server", zap.String("address", listener.Addr().String()), zap.String("endpoint", ws.params.ListenEndpoint))
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			ws.log.Error("Unexpected WebSocket server close!", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		<-ctx.Done()

		shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownRelease()
		ws.log.Info("Attempting to trigger shutdown of WebSocket server")

		if err := server.Shutdown(shutdownCtx); err != nil {
			ws.log.Error("Failed to gracefully shut down WebSocket server", zap.Error(err))
			return
		}
		ws.log.Info("Successfully shutdown WebSocket server")
	}()

	go func() {
		wg.Wait()
		close(ws.done)
	}()

	return nil
}

// Addr is the bound address once Start has succeeded.
func (ws *WebsocketHost) Addr() net.Addr {
	ws.mut_server.Lock()
	defer ws.mut_server.Unlock()
	if ws.listener == nil {
		return nil
	}
	return ws.listener.Addr()
}

// Done is closed after the server has fully shut down.
func (ws *WebsocketHost) Done() <-chan struct{} {
	return ws.done
}

func (ws *WebsocketHost) readHandshake(c *websocket.Conn) (message.PeerId, uint64, error) {
	c.SetReadDeadline(time.Now().Add(ws.params.HandshakeTimeout))
	defer c.SetReadDeadline(time.Time{})

	msgType, payload, msgErr := c.ReadMessage()
	if msgErr != nil {
		return 0, 0, msgErr
	}

	if msgType != websocket.BinaryMessage {
		return 0, 0, &NonBinaryMessage{}
	}

	clientId, protocolId, err := safeParseConnectClientMsg(payload)
	return message.PeerId(clientId), protocolId, err
}

func (ws *WebsocketHost) onWsRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := ws.log.With(
		zap.String("wsConnId", ws.stringGen.GetRandomString(6)),
	)

	log.Debug("New WebSocket request")
	c, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Failed to upgrade HTTP request to WebSocket connection", zap.Error(err))
		return
	}
	defer c.Close()

	if ws.params.MaxReadMessageSize > 0 {
		c.SetReadLimit(ws.params.MaxReadMessageSize)
	}

	//
	// Handshake
	peerId, protocolId, err := ws.readHandshake(c)
	if err != nil {
		log.Warn("Error reading handshake message", zap.Error(err))
		return
	}
	log = log.With(zap.Uint64("peerId", uint64(peerId)))

	link, admitErr := ws.hub.Admit(peerId, protocolId, websocketHandlerName)
	c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteMessage(websocket.BinaryMessage, verdictFromAdmit(admitErr)); err != nil {
		log.Warn("Failed to write handshake verdict", zap.Error(err))
		if link != nil {
			link.Close()
		}
		return
	}
	if admitErr != nil {
		c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "refused"), time.Now().Add(writeWait))
		return
	}
	defer link.Close()

	//
	// Main loop
	connDone := make(chan struct{})
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ws.writeLoop(ctx, c, link, connDone, log)
	}()

	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ws.readLoop(c, link, log)
	close(connDone)
	wg.Wait()
}

func (ws *WebsocketHost) readLoop(c *websocket.Conn, link *PeerLink, log *zap.Logger) {
	expectedCloseErrors := []int{websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived}
	for {
		msgType, payload, msgErr := c.ReadMessage()
		if msgErr != nil {
			if websocket.IsCloseError(msgErr, expectedCloseErrors...) {
				log.Info("Peer closed WebSocket connection")
				return
			}
			if websocket.IsUnexpectedCloseError(msgErr, expectedCloseErrors...) {
				log.Warn("Unexpected WebSocket close", zap.Error(msgErr))
				return
			}
			if errors.Is(msgErr, net.ErrClosed) {
				log.Info("WebSocket closed by host")
				return
			}
			log.Warn("WebSocket read failed", zap.Error(msgErr))
			return
		}

		if msgType != websocket.BinaryMessage {
			log.Debug("Received non-binary message, ignoring", zap.Int("size", len(payload)))
			continue
		}

		link.Deliver(payload)
	}
}

func (ws *WebsocketHost) writeLoop(ctx context.Context, c *websocket.Conn, link *PeerLink, connDone <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	closeWith := func(code int, text string) {
		c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
		c.Close()
	}

	for {
		select {
		case <-ctx.Done():
			closeWith(websocket.CloseGoingAway, "host shutting down")
			return
		case <-link.Done():
			closeWith(websocket.CloseNormalClosure, "host closed connection")
			return
		case <-connDone:
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("Ping failed", zap.Error(err))
				c.Close()
				return
			}
		case <-link.Wake():
			for _, payload := range link.TakeOutgoing() {
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.BinaryMessage, payload); err != nil {
					log.Warn("WebSocket write failed", zap.Error(err))
					c.Close()
					return
				}
			}
		}
	}
}
