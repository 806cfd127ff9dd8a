package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sessamekesh/peersync/pkg/message"
	"go.uber.org/zap/zaptest"
)

func startTestWebsocketHost(t *testing.T, hub *PeerHub) (string, context.CancelFunc) {
	t.Helper()
	host, err := CreateWebsocketHost(hub, WebsocketHostParams{
		ListenEndpoint:  "/ws",
		MetricsEndpoint: "/metrics",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}),
		Origins: OriginPolicy{AllowAllHosts: true},
		Logger:  zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("create host: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(host.Handler(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return strings.TrimPrefix(srv.URL, "http://"), cancel
}

func dialTest(t *testing.T, addr string, id message.PeerId, protocolId uint64) (*WebsocketClient, error) {
	return DialWebsocketClient(context.Background(), WebsocketClientParams{
		HostAddress: addr,
		Endpoint:    "/ws",
		ClientId:    id,
		ProtocolId:  protocolId,
		Backoff:     BackoffParams{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond, MaxAttempts: 1},
		Logger:      zaptest.NewLogger(t),
	})
}

func TestWebsocketHandshakeAndExchange(t *testing.T) {
	hub := newTestHub(t, 1)
	addr, _ := startTestWebsocketHost(t, hub)

	client, err := dialTest(t, addr, 100, 7)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var ev PeerEvent
	eventually(t, "connect event", func() bool {
		var ok bool
		ev, ok = hub.PollEvent()
		return ok
	})
	if ev.Kind != PeerEventKind_Connected || ev.Peer != 100 {
		t.Fatalf("event = %+v", ev)
	}

	if err := client.Send([]byte("up")); err != nil {
		t.Fatalf("client send: %v", err)
	}
	var got []byte
	eventually(t, "payload at host", func() bool {
		var ok bool
		got, ok = hub.TryReceive(100)
		return ok
	})
	if string(got) != "up" {
		t.Fatalf("host got %q", got)
	}

	if err := hub.Send(100, []byte("down")); err != nil {
		t.Fatalf("host send: %v", err)
	}
	eventually(t, "payload at client", func() bool {
		var ok bool
		got, ok = client.TryReceive()
		return ok
	})
	if string(got) != "down" {
		t.Fatalf("client got %q", got)
	}

	var refused *ConnectionRefusedError
	if _, err := dialTest(t, addr, 200, 7); !errors.As(err, &refused) {
		t.Fatalf("second client into full lobby: %v", err)
	}

	client.Close()
	eventually(t, "disconnect event", func() bool {
		ev, ok := hub.PollEvent()
		return ok && ev.Kind == PeerEventKind_Disconnected && ev.Peer == 100
	})
}

func TestWebsocketHostDropsOversizedMessages(t *testing.T) {
	hub := newTestHub(t, 1)
	addr, _ := startTestWebsocketHost(t, hub)

	client, err := dialTest(t, addr, 100, 7)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	eventually(t, "connect event", func() bool {
		ev, ok := hub.PollEvent()
		return ok && ev.Kind == PeerEventKind_Connected
	})

	largest := make([]byte, message.MaxPayloadSize)
	if err := client.Send(largest); err != nil {
		t.Fatalf("send largest payload: %v", err)
	}
	var got []byte
	eventually(t, "largest payload at host", func() bool {
		var ok bool
		got, ok = hub.TryReceive(100)
		return ok
	})
	if len(got) != message.MaxPayloadSize {
		t.Fatalf("host got %d bytes, want %d", len(got), message.MaxPayloadSize)
	}

	if err := client.Send(make([]byte, message.MaxPayloadSize+1)); err != nil {
		t.Fatalf("send oversized payload: %v", err)
	}
	eventually(t, "disconnect after oversized payload", func() bool {
		ev, ok := hub.PollEvent()
		return ok && ev.Kind == PeerEventKind_Disconnected && ev.Peer == 100
	})
	if _, ok := hub.TryReceive(100); ok {
		t.Fatalf("oversized payload reached the hub")
	}
}

func TestWebsocketRefusesWrongProtocol(t *testing.T) {
	hub := newTestHub(t, 4)
	addr, _ := startTestWebsocketHost(t, hub)

	var refused *ConnectionRefusedError
	_, err := dialTest(t, addr, 100, 99)
	if !errors.As(err, &refused) {
		t.Fatalf("expected refusal, got %v", err)
	}
	if !strings.Contains(refused.Reason, "protocol") {
		t.Fatalf("refusal reason %q does not mention the protocol", refused.Reason)
	}
	if hub.PeerCount() != 0 {
		t.Fatalf("refused peer left in hub")
	}
}

func TestWebsocketHostServesMetrics(t *testing.T) {
	addr, _ := startTestWebsocketHost(t, newTestHub(t, 1))
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestDialGivesUpAfterMaxAttempts(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	_, err = DialWebsocketClient(context.Background(), WebsocketClientParams{
		HostAddress: addr,
		Endpoint:    "/ws",
		ClientId:    1,
		ProtocolId:  7,
		Backoff:     BackoffParams{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond, MaxAttempts: 3},
		Logger:      zaptest.NewLogger(t),
	})
	var exhausted *DialExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("expected DialExhaustedError after 3 attempts, got %v", err)
	}
}
