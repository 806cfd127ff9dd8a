package main

import (
	"context"

	"github.com/sessamekesh/peersync/internal/config"
	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/transport"
	"go.uber.org/zap"
)

// hostTransport is the peer hub plus the listeners feeding it. Closing it
// disconnects every peer and stops the listeners.
type hostTransport struct {
	*transport.PeerHub

	stopListeners context.CancelFunc
	listenersDone []<-chan struct{}
}

func (h *hostTransport) Close() error {
	err := h.PeerHub.Close()
	h.stopListeners()
	for _, done := range h.listenersDone {
		<-done
	}
	return err
}

// startHost binds every configured listener in front of a fresh peer hub. If
// any listener fails, the ones already started are stopped before returning.
func startHost(ctx context.Context, settings config.Settings, logger *zap.Logger) (*hostTransport, error) {
	hostCtx, stopListeners := context.WithCancel(ctx)
	host := &hostTransport{
		PeerHub: transport.CreatePeerHub(transport.PeerHubParams{
			ProtocolId: settings.Network.ProtocolId,
			MaxPeers:   settings.Network.MaxClients,
			Logger:     logger,
		}),
		stopListeners: stopListeners,
	}
	origins := transport.OriginPolicy{AllowAllHosts: settings.Network.AllowAllHosts}

	err := func() error {
		wsHost, err := transport.CreateWebsocketHost(host.PeerHub, transport.WebsocketHostParams{
			ListenAddress:   settings.Network.ListenAddress,
			ListenEndpoint:  settings.Network.Endpoint,
			MetricsEndpoint: settings.Network.MetricsEndpoint,
			MetricsHandler:  observability.Handler(),
			Origins:         origins,

			MaxReadMessageSize: settings.Network.MaxMessageSize,

			Logger: logger,
		})
		if err != nil {
			return err
		}
		if err := wsHost.Start(hostCtx); err != nil {
			return err
		}
		host.listenersDone = append(host.listenersDone, wsHost.Done())

		if settings.Network.WebtransportAddress == "" {
			return nil
		}

		wtHost, err := transport.CreateWebtransportHost(host.PeerHub, transport.WebtransportHostParams{
			ListenAddress:  settings.Network.WebtransportAddress,
			ListenEndpoint: settings.Network.WebtransportEndpoint,
			CertPath:       settings.Network.CertPath,
			KeyPath:        settings.Network.KeyPath,
			Origins:        origins,
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		if err := wtHost.Start(hostCtx); err != nil {
			return err
		}
		host.listenersDone = append(host.listenersDone, wtHost.Done())
		return nil
	}()

	if err != nil {
		host.Close()
		return nil, err
	}
	return host, nil
}
