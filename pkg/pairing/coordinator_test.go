package pairing

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oreon-project/pickup-go/pkg/config"
	"github.com/oreon-project/pickup-go/pkg/state"
)

func newTestCoordinator(t *testing.T, hostname string) (*Coordinator, *state.Store) {
	t.Helper()

	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"), nil)
	c := NewCoordinator(CoordinatorConfig{
		Hostname:       hostname,
		Port:           0, // OS-assigned, tests must not collide
		PairingTimeout: 5 * time.Second,
		AcceptPoll:     50 * time.Millisecond,
		ReadTimeout:    2 * time.Second,
		ConnectTimeout: 2 * time.Second,
	}, store, nil)
	t.Cleanup(c.StopSession)
	return c, store
}

func waitForState(t *testing.T, c *Coordinator, want SessionState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == want
	}, 3*time.Second, 20*time.Millisecond, "state = %s, want %s", c.State(), want)
}

func TestPairingSuccess(t *testing.T) {
	responder, responderStore := newTestCoordinator(t, "alpha")
	initiator, initiatorStore := newTestCoordinator(t, "beta")

	require.NoError(t, responder.StartResponder("4242"))
	port := responder.ListenPort()
	require.NotZero(t, port)
	assert.Equal(t, "4242", responder.ActiveCode())

	outcome, err := initiator.Initiate(context.Background(), "127.0.0.1", port, "4242")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "alpha", outcome.PeerHostname)
	assert.Equal(t, StatePaired, initiator.State())

	waitForState(t, responder, StatePaired)
	assert.Equal(t, Outcome{Success: true, PeerHostname: "beta"}, responder.LastOutcome())

	// Both sides must have persisted the peer.
	devices, err := initiatorStore.List()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	device, ok := devices["alpha@127.0.0.1"]
	require.True(t, ok, "initiator store keys: %v", devices)
	assert.Equal(t, "alpha", device.Hostname)
	assert.Equal(t, port, device.Port)
	assert.NotZero(t, device.PairedAt)

	devices, err = responderStore.List()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	device, ok = devices["beta@127.0.0.1"]
	require.True(t, ok, "responder store keys: %v", devices)
	assert.Equal(t, "beta", device.Hostname)
	// The responder cannot see the initiator's listener; it records the
	// default pairing port, not its own ephemeral one.
	assert.Equal(t, config.DefaultPort, device.Port)
}

func TestPairingCodeWhitespaceTrimmed(t *testing.T) {
	responder, _ := newTestCoordinator(t, "alpha")
	initiator, _ := newTestCoordinator(t, "beta")

	require.NoError(t, responder.StartResponder(" 4242\n"))
	assert.Equal(t, "4242", responder.ActiveCode())

	outcome, err := initiator.Initiate(context.Background(), "127.0.0.1", responder.ListenPort(), " 4242 ")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	waitForState(t, responder, StatePaired)
}

func TestPairingCodeMismatch(t *testing.T) {
	responder, responderStore := newTestCoordinator(t, "alpha")
	initiator, initiatorStore := newTestCoordinator(t, "beta")

	require.NoError(t, responder.StartResponder("1234"))

	outcome, err := initiator.Initiate(context.Background(), "127.0.0.1", responder.ListenPort(), "9999")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, ReasonInvalidCode, outcome.Reason)
	assert.Equal(t, StateRejected, initiator.State())

	waitForState(t, responder, StateRejected)
	assert.Equal(t, ReasonInvalidCode, responder.LastOutcome().Reason)

	devices, err := initiatorStore.List()
	require.NoError(t, err)
	assert.Empty(t, devices)
	devices, err = responderStore.List()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestResponderTimeoutReleasesPort(t *testing.T) {
	responder, _ := newTestCoordinator(t, "alpha")
	responder.config.PairingTimeout = 200 * time.Millisecond

	require.NoError(t, responder.StartResponder("4242"))
	port := responder.ListenPort()

	waitForState(t, responder, StateCancelled)
	assert.Empty(t, responder.ActiveCode())

	// The listen socket must be released once the session expires.
	require.Eventually(t, func() bool {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return false
		}
		listener.Close()
		return true
	}, time.Second, 20*time.Millisecond)
}

func TestStopSessionIdempotent(t *testing.T) {
	responder, _ := newTestCoordinator(t, "alpha")

	require.NoError(t, responder.StartResponder("4242"))
	responder.StopSession()
	waitForState(t, responder, StateCancelled)
	responder.StopSession() // no active session, must not block or panic
	assert.Equal(t, StateCancelled, responder.State())
}

func TestStartResponderReplacesSession(t *testing.T) {
	responder, _ := newTestCoordinator(t, "alpha")

	require.NoError(t, responder.StartResponder("1111"))
	first := responder.ListenPort()

	// Starting again stops the old session first, so rebinding the same
	// port family succeeds and the new code takes effect.
	require.NoError(t, responder.StartResponder("2222"))
	assert.Equal(t, "2222", responder.ActiveCode())
	assert.Equal(t, StateListening, responder.State())
	assert.NotZero(t, first)
}

func TestStartResponderInvalidCode(t *testing.T) {
	responder, _ := newTestCoordinator(t, "alpha")

	err := responder.StartResponder("12")
	require.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, StateIdle, responder.State())
}

func TestStartResponderBindFailure(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer blocker.Close()
	port := blocker.Addr().(*net.TCPAddr).Port

	responder, _ := newTestCoordinator(t, "alpha")
	responder.config.Port = port

	err = responder.StartResponder("4242")
	require.ErrorIs(t, err, ErrBindFailed)
	assert.Equal(t, StateIdle, responder.State())
}

func TestInitiateConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	initiator, store := newTestCoordinator(t, "beta")

	outcome, err := initiator.Initiate(context.Background(), "127.0.0.1", port, "4242")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, ReasonConnectionRefused, outcome.Reason)
	assert.Equal(t, StateRejected, initiator.State())

	devices, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestInitiateInvalidCode(t *testing.T) {
	initiator, _ := newTestCoordinator(t, "beta")

	_, err := initiator.Initiate(context.Background(), "127.0.0.1", 1, "nope")
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestInitiateResponderSendsFailure(t *testing.T) {
	// A hand-rolled responder that rejects whatever arrives, to pin down
	// how a failure confirm surfaces in the outcome.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req Request
		if _, err := readMessage(conn, &req); err != nil {
			return
		}
		writeMessage(conn, Confirm{Type: TypeConfirm, Status: StatusFailure, Reason: "busy"})
	}()

	initiator, _ := newTestCoordinator(t, "beta")
	port := listener.Addr().(*net.TCPAddr).Port

	outcome, err := initiator.Initiate(context.Background(), "127.0.0.1", port, "4242")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "busy", outcome.Reason)
}

func TestInitiateMalformedResponse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		var req Request
		readMessage(conn, &req)
		conn.Write([]byte("definitely not json"))
		conn.Close()
	}()

	initiator, _ := newTestCoordinator(t, "beta")
	port := listener.Addr().(*net.TCPAddr).Port

	outcome, err := initiator.Initiate(context.Background(), "127.0.0.1", port, "4242")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, ReasonMalformedMessage, outcome.Reason)
}

func TestOnStateChangeSequence(t *testing.T) {
	responder, _ := newTestCoordinator(t, "alpha")
	initiator, _ := newTestCoordinator(t, "beta")

	transitions := make(chan SessionState, 16)
	initiator.OnStateChange(func(old, new SessionState) {
		transitions <- new
	})

	require.NoError(t, responder.StartResponder("4242"))
	outcome, err := initiator.Initiate(context.Background(), "127.0.0.1", responder.ListenPort(), "4242")
	require.NoError(t, err)
	require.True(t, outcome.Success)

	want := []SessionState{StateConnecting, StateAwaitingResponse, StatePaired}
	for _, state := range want {
		select {
		case got := <-transitions:
			assert.Equal(t, state, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for transition to %s", state)
		}
	}
}

func TestMalformedRequestRejected(t *testing.T) {
	responder, store := newTestCoordinator(t, "alpha")
	require.NoError(t, responder.StartResponder("4242"))

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", responder.ListenPort()))
	require.NoError(t, err)
	conn.Write([]byte("garbage"))
	conn.Close()

	waitForState(t, responder, StateRejected)

	devices, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestResponderWrongMessageType(t *testing.T) {
	responder, _ := newTestCoordinator(t, "alpha")
	require.NoError(t, responder.StartResponder("4242"))

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", responder.ListenPort()))
	require.NoError(t, err)
	defer conn.Close()

	// Valid JSON, wrong type: treated like a bad code, one failure reply.
	_, err = writeMessage(conn, Confirm{Type: TypeConfirm, Status: StatusSuccess})
	require.NoError(t, err)

	var confirm Confirm
	_, err = readMessage(conn, &confirm)
	require.NoError(t, err)
	assert.Equal(t, TypeConfirm, confirm.Type)
	assert.Equal(t, StatusFailure, confirm.Status)
	assert.Equal(t, ReasonInvalidCode, confirm.Reason)

	waitForState(t, responder, StateRejected)
}

func TestInitiateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	initiator, _ := newTestCoordinator(t, "beta")
	outcome, err := initiator.Initiate(ctx, "127.0.0.1", 1, "4242")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, ReasonCancelled, outcome.Reason)
	assert.Equal(t, StateCancelled, initiator.State())
}

func TestStopSessionAbortsInitiateExchange(t *testing.T) {
	// A responder that accepts and reads but holds its reply until
	// released, leaving the initiator blocked mid-exchange.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	release := make(chan struct{})
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req Request
		if _, err := readMessage(conn, &req); err != nil {
			return
		}
		<-release
		writeMessage(conn, Confirm{Type: TypeConfirm, Status: StatusSuccess, Hostname: "late"})
	}()

	initiator, store := newTestCoordinator(t, "beta")
	port := listener.Addr().(*net.TCPAddr).Port

	type result struct {
		outcome Outcome
		err     error
	}
	results := make(chan result, 1)
	go func() {
		outcome, err := initiator.Initiate(context.Background(), "127.0.0.1", port, "4242")
		results <- result{outcome, err}
	}()

	waitForState(t, initiator, StateAwaitingResponse)
	initiator.StopSession()
	close(release)

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.False(t, res.outcome.Success)
		assert.Equal(t, ReasonCancelled, res.outcome.Reason)
	case <-time.After(3 * time.Second):
		t.Fatal("Initiate did not return after StopSession")
	}
	assert.Equal(t, StateCancelled, initiator.State())

	// The stopped session must not write a trust-store record, even when
	// the peer's success confirm arrives after the stop.
	devices, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, devices)
}
