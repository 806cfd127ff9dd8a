package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	utils "github.com/sessamekesh/peersync/pkg/util"
	"go.uber.org/zap"
)

const webtransportHandlerName = "WebTransport"

type WebtransportHostParams struct {
	ListenAddress  string
	ListenEndpoint string

	CertPath string
	KeyPath  string

	Origins OriginPolicy

	HandshakeTimeout time.Duration

	Logger *zap.Logger
}

// WebtransportHost accepts WebTransport sessions. Each session carries the
// protocol on a single bidirectional stream so delivery stays reliable and
// ordered.
type WebtransportHost struct {
	params WebtransportHostParams
	hub    *PeerHub

	s    *webtransport.Server
	done chan struct{}

	log       *zap.Logger
	stringGen *utils.RandomStringGenerator
}

func CreateWebtransportHost(hub *PeerHub, params WebtransportHostParams) (*WebtransportHost, error) {
	logger := observability.OrDevelopment(params.Logger)
	if hub == nil {
		return nil, errors.New("webtransport host needs a peer hub")
	}
	if params.CertPath == "" || params.KeyPath == "" {
		return nil, errors.New("webtransport host needs a certificate and key")
	}
	if params.HandshakeTimeout <= 0 {
		params.HandshakeTimeout = defaultHandshakeTimeout
	}

	return &WebtransportHost{
		params:    params,
		hub:       hub,
		done:      make(chan struct{}),
		log:       logger.With(zap.String("handler", webtransportHandlerName)),
		stringGen: utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
	}, nil
}

// Start loads the certificate and binds the UDP socket before returning; the
// server itself runs in the background until ctx is cancelled.
func (wt *WebtransportHost) Start(ctx context.Context) error {
	certs, err := tls.LoadX509KeyPair(wt.params.CertPath, wt.params.KeyPath)
	if err != nil {
		wt.log.Error("Failed to load certificate pair", zap.Error(err))
		return err
	}

	udpConn, err := net.ListenPacket("udp", wt.params.ListenAddress)
	if err != nil {
		wt.log.Error("Failed to bind WebTransport socket", zap.String("address", wt.params.ListenAddress), zap.Error(err))
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(wt.params.ListenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		wt.onWtRequest(ctx, w, r)
	})

	wt.s = &webtransport.Server{
		H3: http3.Server{
			Addr:      wt.params.ListenAddress,
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{certs}},
			Handler:   mux,
		},
		CheckOrigin: wt.params.Origins.Allows,
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		wt.log.Info("Starting WebTransport HTTP3 server", zap.String("address", udpConn.LocalAddr().String()))
		defer wt.log.Info("Shutdown WebTransport HTTP3 server")

		if err := wt.s.Serve(udpConn); err != nil && ctx.Err() == nil {
			wt.log.Error("Unexpected WebTransport server close!", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := wt.s.Close(); err != nil {
			wt.log.Warn("Error closing WebTransport server", zap.Error(err))
		}
		udpConn.Close()
	}()

	go func() {
		wg.Wait()
		close(wt.done)
	}()

	return nil
}

func (wt *WebtransportHost) Done() <-chan struct{} {
	return wt.done
}

func (wt *WebtransportHost) readHandshake(ctx context.Context, stream io.Reader) (message.PeerId, uint64, error) {
	type result struct {
		payload []byte
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		payload, err := readFrame(stream)
		resultCh <- result{payload: payload, err: err}
	}()

	timer := time.NewTimer(wt.params.HandshakeTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case <-timer.C:
		return 0, 0, errors.New("handshake timed out")
	case res := <-resultCh:
		if res.err != nil {
			return 0, 0, res.err
		}
		clientId, protocolId, err := safeParseConnectClientMsg(res.payload)
		return message.PeerId(clientId), protocolId, err
	}
}

func (wt *WebtransportHost) onWtRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := wt.log.With(zap.String("wtConnId", wt.stringGen.GetRandomString(6)))

	log.Debug("New WebTransport request")

	session, sessionError := wt.s.Upgrade(w, r)
	if sessionError != nil {
		log.Warn("Failed to upgrade HTTP3 request to a WebTransport session", zap.Error(sessionError))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer session.CloseWithError(0, "Host closed connection")

	sessionCtx, sessionCancel := context.WithCancel(ctx)
	defer sessionCancel()
	go func() {
		select {
		case <-session.Context().Done():
			sessionCancel()
		case <-sessionCtx.Done():
		}
	}()

	stream, err := session.AcceptStream(sessionCtx)
	if err != nil {
		log.Warn("Peer never opened a stream", zap.Error(err))
		return
	}
	defer stream.Close()

	//
	// Handshake
	peerId, protocolId, err := wt.readHandshake(sessionCtx, stream)
	if err != nil {
		log.Warn("Error reading handshake message", zap.Error(err))
		return
	}
	log = log.With(zap.Uint64("peerId", uint64(peerId)))

	link, admitErr := wt.hub.Admit(peerId, protocolId, webtransportHandlerName)
	if err := writeFrame(stream, verdictFromAdmit(admitErr)); err != nil {
		log.Warn("Failed to write handshake verdict", zap.Error(err))
		if link != nil {
			link.Close()
		}
		return
	}
	if admitErr != nil {
		return
	}
	defer link.Close()

	//
	// Main loop
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sessionCancel()

		for {
			select {
			case <-sessionCtx.Done():
				return
			case <-link.Done():
				session.CloseWithError(0, "Host closed connection")
				return
			case <-link.Wake():
				for _, payload := range link.TakeOutgoing() {
					if err := writeFrame(stream, payload); err != nil {
						log.Warn("Error writing to bidi stream", zap.Error(err))
						return
					}
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sessionCancel()

		for {
			payload, err := readFrame(stream)
			if err != nil {
				if sessionCtx.Err() == nil && !errors.Is(err, io.EOF) {
					log.Warn("Unexpected read error", zap.Error(err))
				}
				return
			}
			link.Deliver(payload)
		}
	}()

	<-sessionCtx.Done()
	session.CloseWithError(0, "Session finished")
	wg.Wait()
}
