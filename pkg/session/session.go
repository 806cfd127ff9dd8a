package session

import (
	"fmt"

	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/relay"
	"go.uber.org/zap"
)

type State uint8

const (
	State_Uninitialized State = iota
	State_Initializing
	State_Ready
	State_Closed
)

func (s State) String() string {
	switch s {
	case State_Uninitialized:
		return "Uninitialized"
	case State_Initializing:
		return "Initializing"
	case State_Ready:
		return "Ready"
	case State_Closed:
		return "Closed"
	}
	return "Unknown"
}

type SessionClosedError struct{}

func (e *SessionClosedError) Error() string {
	return "Host session is closed, the host transport cannot be created again"
}

type HostTransportFactory func() (relay.HostTransport, error)

type ReentrantInitError struct{}

func (e *ReentrantInitError) Error() string {
	return "Host transport initialization re-entered while already in progress"
}

// HostSession decides whether this process hosts and makes sure the host
// transport is created at most once. The role is fixed at construction.
type HostSession struct {
	isHost    bool
	state     State
	transport relay.HostTransport

	log *zap.Logger
}

func CreateHostSession(isHost bool, logger *zap.Logger) *HostSession {
	logger = observability.OrDevelopment(logger)
	return &HostSession{
		isHost: isHost,
		state:  State_Uninitialized,
		log:    logger.With(zap.String("component", "HostSession"), zap.Bool("isHost", isHost)),
	}
}

func (s *HostSession) IsHost() bool {
	return s.isHost
}

func (s *HostSession) State() State {
	return s.state
}

// Transport is nil until the session is Ready.
func (s *HostSession) Transport() relay.HostTransport {
	return s.transport
}

// EnsureHostTransport returns the host transport, calling factory the first
// time only. Non-hosts always get nil. A failed factory leaves the session
// Uninitialized and returns the error; a closed session returns
// SessionClosedError.
func (s *HostSession) EnsureHostTransport(factory HostTransportFactory) (relay.HostTransport, error) {
	if !s.isHost {
		return nil, nil
	}

	switch s.state {
	case State_Ready:
		return s.transport, nil
	case State_Initializing:
		return nil, &ReentrantInitError{}
	case State_Closed:
		return nil, &SessionClosedError{}
	}

	s.state = State_Initializing
	s.log.Info("Initializing host transport")

	transport, err := factory()
	if err != nil {
		s.state = State_Uninitialized
		return nil, fmt.Errorf("create host transport: %w", err)
	}

	s.transport = transport
	s.state = State_Ready
	s.log.Info("Host transport ready")
	return transport, nil
}

// Close releases the host transport if one was created. The session is
// closed for good afterwards.
func (s *HostSession) Close() error {
	s.state = State_Closed
	if s.transport == nil {
		return nil
	}
	err := s.transport.Close()
	s.transport = nil
	return err
}
