package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func TestHandshakeMessagesRoundTrip(t *testing.T) {
	clientId, protocolId, err := safeParseConnectClientMsg(createConnectClientMsg(1718000000123, 7))
	if err != nil || clientId != 1718000000123 || protocolId != 7 {
		t.Fatalf("connect message = %d, %d, %v", clientId, protocolId, err)
	}

	accepted, reason, err := safeParseVerdictMsg(createVerdictMsg(false, "lobby full"))
	if err != nil || accepted || reason != "lobby full" {
		t.Fatalf("verdict = %v, %q, %v", accepted, reason, err)
	}

	accepted, reason, err = safeParseVerdictMsg(verdictFromAdmit(nil))
	if err != nil || !accepted || reason != "" {
		t.Fatalf("accepting verdict = %v, %q, %v", accepted, reason, err)
	}
}

func TestHandshakeRejectsDeformedPayload(t *testing.T) {
	var deformed *DeformedHandshakeError
	if _, _, err := safeParseConnectClientMsg([]byte{0x01}); !errors.As(err, &deformed) {
		t.Fatalf("expected DeformedHandshakeError, got %v", err)
	}
	if _, _, err := safeParseVerdictMsg(nil); !errors.As(err, &deformed) {
		t.Fatalf("expected DeformedHandshakeError, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, payload := range [][]byte{{1, 2, 3}, {}, bytes.Repeat([]byte{7}, 1000)} {
		if err := writeFrame(&buf, payload); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for _, want := range []int{3, 0, 1000} {
		got, err := readFrame(&buf)
		if err != nil || len(got) != want {
			t.Fatalf("frame len = %d, %v; want %d", len(got), err, want)
		}
	}

	var tooLarge *FrameTooLargeError
	if err := writeFrame(&buf, make([]byte, maxFrameSize+1)); !errors.As(err, &tooLarge) {
		t.Fatalf("expected FrameTooLargeError, got %v", err)
	}
	if _, err := readFrame(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF})); !errors.As(err, &tooLarge) {
		t.Fatalf("expected FrameTooLargeError on read, got %v", err)
	}
}

func TestDialBackOffSchedule(t *testing.T) {
	params := BackoffParams{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     5 * time.Second,
		MaxAttempts:  20,
	}
	b := newDialBackOff(context.Background(), params)
	want := []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("retry %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestDialBackOffStopsAfterMaxAttempts(t *testing.T) {
	params := BackoffParams{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second, MaxAttempts: 3}
	b := newDialBackOff(context.Background(), params)
	for i := 0; i < 2; i++ {
		if d := b.NextBackOff(); d == backoff.Stop {
			t.Fatalf("retry %d stopped early", i+1)
		}
	}
	if d := b.NextBackOff(); d != backoff.Stop {
		t.Fatalf("third retry = %v, want Stop", d)
	}

	if d := newDialBackOff(context.Background(), BackoffParams{MaxAttempts: 1}).NextBackOff(); d != backoff.Stop {
		t.Fatalf("single attempt schedule retried after %v", d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if d := newDialBackOff(ctx, params).NextBackOff(); d != backoff.Stop {
		t.Fatalf("cancelled schedule retried after %v", d)
	}
}
