package session

import (
	"errors"
	"testing"

	"github.com/sessamekesh/peersync/pkg/relay"
	"github.com/sessamekesh/peersync/pkg/transport"
	"go.uber.org/zap/zaptest"
)

func TestHostTransportIsCreatedOnceAcrossManyTicks(t *testing.T) {
	s := CreateHostSession(true, zaptest.NewLogger(t))
	calls := 0
	hub := transport.CreatePeerHub(transport.PeerHubParams{ProtocolId: 7, Logger: zaptest.NewLogger(t)})
	factory := func() (relay.HostTransport, error) {
		calls++
		return hub, nil
	}

	var first relay.HostTransport
	for tick := 0; tick < 1000; tick++ {
		got, err := s.EnsureHostTransport(factory)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if tick == 0 {
			first = got
		} else if got != first {
			t.Fatalf("tick %d returned a different transport", tick)
		}
	}

	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
	if s.State() != State_Ready {
		t.Fatalf("state = %s, want Ready", s.State())
	}
}

func TestNonHostNeverCreatesTransport(t *testing.T) {
	s := CreateHostSession(false, zaptest.NewLogger(t))
	for tick := 0; tick < 1000; tick++ {
		got, err := s.EnsureHostTransport(func() (relay.HostTransport, error) {
			t.Fatalf("factory called for a non-host")
			return nil, nil
		})
		if err != nil || got != nil {
			t.Fatalf("non-host got %v, %v", got, err)
		}
	}
	if s.State() != State_Uninitialized {
		t.Fatalf("state = %s", s.State())
	}
}

func TestFactoryFailureIsReported(t *testing.T) {
	s := CreateHostSession(true, zaptest.NewLogger(t))
	boom := errors.New("address in use")
	if _, err := s.EnsureHostTransport(func() (relay.HostTransport, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped factory error, got %v", err)
	}
	if s.State() != State_Uninitialized || s.Transport() != nil {
		t.Fatalf("failed init left state %s", s.State())
	}
}

func TestReentrantInitIsRejected(t *testing.T) {
	s := CreateHostSession(true, zaptest.NewLogger(t))
	var inner error
	_, err := s.EnsureHostTransport(func() (relay.HostTransport, error) {
		_, inner = s.EnsureHostTransport(func() (relay.HostTransport, error) {
			t.Fatalf("nested factory must not run")
			return nil, nil
		})
		return transport.CreatePeerHub(transport.PeerHubParams{ProtocolId: 7, Logger: zaptest.NewLogger(t)}), nil
	})
	if err != nil {
		t.Fatalf("outer init: %v", err)
	}
	var reentrant *ReentrantInitError
	if !errors.As(inner, &reentrant) {
		t.Fatalf("expected ReentrantInitError, got %v", inner)
	}
}

func TestClosedSessionNeverRecreatesTransport(t *testing.T) {
	s := CreateHostSession(true, zaptest.NewLogger(t))
	calls := 0
	factory := func() (relay.HostTransport, error) {
		calls++
		return transport.CreatePeerHub(transport.PeerHubParams{ProtocolId: 7, Logger: zaptest.NewLogger(t)}), nil
	}

	if _, err := s.EnsureHostTransport(factory); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var closed *SessionClosedError
	for tick := 0; tick < 10; tick++ {
		got, err := s.EnsureHostTransport(factory)
		if !errors.As(err, &closed) || got != nil {
			t.Fatalf("tick %d after close: got %v, %v", tick, got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
	if s.State() != State_Closed || s.Transport() != nil {
		t.Fatalf("state = %s after close", s.State())
	}
}
