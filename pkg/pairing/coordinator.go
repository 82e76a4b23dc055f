package pairing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/oreon-project/pickup-go/pkg/config"
	"github.com/oreon-project/pickup-go/pkg/log"
	"github.com/oreon-project/pickup-go/pkg/state"
)

// Coordinator errors.
var (
	// ErrBindFailed indicates the responder could not bind its listen port,
	// e.g. a stale session still holds it.
	ErrBindFailed = errors.New("failed to bind pairing port")
)

// Default timing values.
const (
	// DefaultConnectTimeout bounds the initiator's dial.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultReadTimeout bounds each side's single read/write exchange.
	DefaultReadTimeout = 10 * time.Second

	// DefaultAcceptPoll is how often the responder's accept wait checks the
	// stop flag and session deadline.
	DefaultAcceptPoll = 500 * time.Millisecond

	// DefaultStopGracePeriod bounds how long StopSession waits for the
	// session worker to exit.
	DefaultStopGracePeriod = 2 * time.Second
)

// unknownHostname is recorded when a peer does not identify itself.
const unknownHostname = "Unknown Device"

// CoordinatorConfig configures a pairing Coordinator.
type CoordinatorConfig struct {
	// Hostname is this device's hostname, sent on the wire.
	// Defaults to os.Hostname.
	Hostname string

	// Port is the responder listen port. 0 requests an OS-assigned port.
	Port int

	// PairingTimeout is the responder session deadline.
	// Defaults to config.DefaultPairingTimeout.
	PairingTimeout time.Duration

	// CodeLength is the number of digits in generated codes.
	// Defaults to config.DefaultCodeLength.
	CodeLength int

	// ConnectTimeout bounds the initiator's dial.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the single request/response exchange.
	ReadTimeout time.Duration

	// AcceptPoll is the stop-flag polling granularity of the accept wait.
	AcceptPoll time.Duration

	// StopGracePeriod bounds the worker join in StopSession.
	StopGracePeriod time.Duration
}

// withDefaults fills unset fields.
func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.Hostname == "" {
		if hn, err := os.Hostname(); err == nil {
			c.Hostname = hn
		} else {
			c.Hostname = unknownHostname
		}
	}
	if c.PairingTimeout == 0 {
		c.PairingTimeout = config.DefaultPairingTimeout
	}
	if c.CodeLength == 0 {
		c.CodeLength = config.DefaultCodeLength
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.AcceptPoll == 0 {
		c.AcceptPoll = DefaultAcceptPoll
	}
	if c.StopGracePeriod == 0 {
		c.StopGracePeriod = DefaultStopGracePeriod
	}
	return c
}

// Coordinator runs the pairing handshake in either role. At most one session
// is active per Coordinator; starting a new session stops the prior one.
type Coordinator struct {
	config CoordinatorConfig
	store  *state.Store
	logger log.Logger

	mu sync.Mutex

	// Session state, guarded by mu.
	state        SessionState
	role         Role
	sessionID    string
	code         string
	peerHostname string
	lastOutcome  Outcome
	listener     net.Listener
	conn         net.Conn
	stop         chan struct{}
	done         chan struct{}

	onStateChange func(old, new SessionState)
}

// NewCoordinator creates a pairing coordinator that persists successful
// pairings into store. Pass a nil logger to disable logging.
func NewCoordinator(cfg CoordinatorConfig, store *state.Store, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Coordinator{
		config: cfg.withDefaults(),
		store:  store,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current session state. Terminal states persist until the
// next session starts.
func (c *Coordinator) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ListenPort returns the port an active responder session is bound to, or 0.
// Differs from the configured port only when that was 0 (ephemeral).
func (c *Coordinator) ListenPort() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return 0
	}
	return c.listener.Addr().(*net.TCPAddr).Port
}

// ActiveCode returns the code of the active responder session, or "".
func (c *Coordinator) ActiveCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.active() && c.role == RoleResponder {
		return c.code
	}
	return ""
}

// LastOutcome returns the result of the most recently finished session.
// This is how responder-side results (including trust-store write failures,
// carried in Reason alongside Success) reach the caller, which has no
// synchronous return path.
func (c *Coordinator) LastOutcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOutcome
}

// OnStateChange sets a callback for session state changes.
// The callback is invoked outside the coordinator lock.
func (c *Coordinator) OnStateChange(fn func(old, new SessionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// GenerateCode generates a pairing code of the configured length.
func (c *Coordinator) GenerateCode() (string, error) {
	return GenerateCode(c.config.CodeLength)
}

// StartResponder begins a responder session: bind the pairing port, wait for
// one incoming connection, verify the code, reply, and persist on success.
// Any prior session is stopped first. Returns ErrBindFailed when the port is
// unavailable (e.g. held by a stale session).
func (c *Coordinator) StartResponder(code string) error {
	code = strings.TrimSpace(code)
	if err := ValidateCode(code); err != nil {
		return err
	}

	c.StopSession()

	c.mu.Lock()
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	sid := uuid.NewString()
	stop := make(chan struct{})
	done := make(chan struct{})

	c.role = RoleResponder
	c.sessionID = sid
	c.code = code
	c.peerHostname = ""
	c.lastOutcome = Outcome{}
	c.listener = listener
	c.conn = nil
	c.stop = stop
	c.done = done
	old := c.state
	c.state = StateListening
	cb := c.onStateChange
	c.mu.Unlock()

	c.notifyStateChange(cb, old, StateListening, sid, log.RoleResponder, "")

	deadline := time.Now().Add(c.config.PairingTimeout)
	go c.responderLoop(listener, code, deadline, stop, done, sid)
	return nil
}

// responderLoop waits for at most one connection, bounded by the session
// deadline, polling the stop flag at sub-second granularity.
func (c *Coordinator) responderLoop(listener net.Listener, code string, deadline time.Time, stop, done chan struct{}, sid string) {
	defer close(done)
	defer listener.Close()

	tcpListener := listener.(*net.TCPListener)
	for {
		select {
		case <-stop:
			c.finish(sid, StateCancelled, "stopped")
			return
		default:
		}
		if time.Now().After(deadline) {
			c.finish(sid, StateCancelled, "timeout")
			return
		}

		poll := c.config.AcceptPoll
		if remaining := time.Until(deadline); remaining < poll {
			poll = remaining
		}
		_ = tcpListener.SetDeadline(time.Now().Add(poll))

		conn, err := tcpListener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			select {
			case <-stop:
				c.finish(sid, StateCancelled, "stopped")
			default:
				c.logError(sid, log.RoleResponder, "accept", err)
				c.finish(sid, StateCancelled, "accept failed")
			}
			return
		}

		// One connection per session.
		c.adoptConn(sid, conn)
		c.setState(sid, StateVerifying, "")
		c.handleIncoming(conn, code, sid)
		return
	}
}

// handleIncoming runs the responder side of the exchange on an accepted
// connection.
func (c *Coordinator) handleIncoming(conn net.Conn, code string, sid string) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	_ = conn.SetDeadline(time.Now().Add(c.config.ReadTimeout))

	var req Request
	raw, err := readMessage(conn, &req)
	if len(raw) > 0 {
		c.logWire(sid, log.RoleResponder, log.DirectionIn, remote, raw)
	}
	if err != nil {
		c.logError(sid, log.RoleResponder, "read",
			fmt.Errorf("%v (fragment: %s)", err, truncateForLog(raw)))
		c.finish(sid, StateRejected, ReasonMalformedMessage)
		return
	}

	if req.Type == TypeRequest && req.Code == code {
		c.rememberPeer(sid, req.Hostname)

		reply := Confirm{Type: TypeConfirm, Status: StatusSuccess, Hostname: c.config.Hostname}
		sent, werr := writeMessage(conn, reply)
		if werr != nil {
			c.logError(sid, log.RoleResponder, "write", werr)
			c.finish(sid, StateRejected, ReasonSendFailed)
			return
		}
		c.logWire(sid, log.RoleResponder, log.DirectionOut, remote, sent)

		// The initiator's own listener is not part of this exchange;
		// record the default pairing port as the port to reach it on.
		reason := ""
		if perr := c.persistPeer(sid, log.RoleResponder, req.Hostname, remoteIP(remote), config.DefaultPort); perr != nil {
			reason = perr.Error()
		}
		c.finish(sid, StatePaired, reason)
		return
	}

	// Wrong code or wrong message type: one failure reply, session over.
	c.rememberPeer(sid, req.Hostname)
	reply := Confirm{Type: TypeConfirm, Status: StatusFailure, Reason: ReasonInvalidCode}
	if sent, werr := writeMessage(conn, reply); werr == nil {
		c.logWire(sid, log.RoleResponder, log.DirectionOut, remote, sent)
	}
	c.finish(sid, StateRejected, ReasonInvalidCode)
}

// Initiate runs an initiator session against a peer that is showing code.
// Network failures are folded into the returned Outcome; the error return is
// reserved for invalid input and trust-store write failures (the pairing
// succeeded but may not have persisted).
func (c *Coordinator) Initiate(ctx context.Context, ip string, port int, code string) (Outcome, error) {
	code = strings.TrimSpace(code)
	if err := ValidateCode(code); err != nil {
		return Outcome{Success: false, Reason: err.Error()}, err
	}

	c.StopSession()

	c.mu.Lock()
	sid := uuid.NewString()
	stop := make(chan struct{})
	done := make(chan struct{})

	c.role = RoleInitiator
	c.sessionID = sid
	c.code = code
	c.peerHostname = ""
	c.lastOutcome = Outcome{}
	c.listener = nil
	c.conn = nil
	c.stop = stop
	c.done = done
	old := c.state
	c.state = StateConnecting
	cb := c.onStateChange
	c.mu.Unlock()

	defer close(done)

	c.notifyStateChange(cb, old, StateConnecting, sid, log.RoleInitiator, "")

	// While the dial is in flight there is no socket for StopSession to
	// close; the stop flag reaches it through context cancellation.
	dialCtx, cancelDial := context.WithCancel(ctx)
	defer cancelDial()
	go func() {
		select {
		case <-stop:
			cancelDial()
		case <-dialCtx.Done():
		}
	}()

	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		reason := classifyDialError(ctx, stop, err)
		c.logError(sid, log.RoleInitiator, "connect", err)
		c.finish(sid, failureState(reason), reason)
		return Outcome{Success: false, Reason: reason}, nil
	}
	defer conn.Close()
	c.adoptConn(sid, conn)

	// A stop that raced the dial's completion must not let the exchange
	// proceed and persist a peer.
	if stopped(ctx, stop) {
		c.finish(sid, StateCancelled, ReasonCancelled)
		return Outcome{Success: false, Reason: ReasonCancelled}, nil
	}

	_ = conn.SetDeadline(time.Now().Add(c.config.ReadTimeout))

	request := Request{Type: TypeRequest, Code: code, Hostname: c.config.Hostname}
	sent, err := writeMessage(conn, request)
	if err != nil {
		c.logError(sid, log.RoleInitiator, "write", err)
		c.finish(sid, StateRejected, ReasonSendFailed)
		return Outcome{Success: false, Reason: ReasonSendFailed}, nil
	}
	c.logWire(sid, log.RoleInitiator, log.DirectionOut, addr, sent)

	c.setState(sid, StateAwaitingResponse, "")

	var confirm Confirm
	raw, err := readMessage(conn, &confirm)
	if len(raw) > 0 {
		c.logWire(sid, log.RoleInitiator, log.DirectionIn, addr, raw)
	}
	if err != nil {
		reason := classifyReadError(ctx, stop, err)
		c.logError(sid, log.RoleInitiator, "read",
			fmt.Errorf("%v (fragment: %s)", err, truncateForLog(raw)))
		c.finish(sid, failureState(reason), reason)
		return Outcome{Success: false, Reason: reason}, nil
	}

	if confirm.Type == TypeConfirm && confirm.Status == StatusSuccess {
		hostname := confirm.Hostname
		if hostname == "" {
			hostname = unknownHostname
		}
		c.rememberPeer(sid, hostname)
		storeErr := c.persistPeer(sid, log.RoleInitiator, hostname, ip, port)
		reason := ""
		if storeErr != nil {
			reason = storeErr.Error()
		}
		c.finish(sid, StatePaired, reason)
		return Outcome{Success: true, PeerHostname: hostname}, storeErr
	}

	reason := confirm.Reason
	if reason == "" {
		reason = "pairing failed"
	}
	c.rememberPeer(sid, confirm.Hostname)
	c.finish(sid, StateRejected, reason)
	return Outcome{Success: false, PeerHostname: confirm.Hostname, Reason: reason}, nil
}

// StopSession cancels any active session: set the stop flag, unblock the
// accept/connect by closing its socket, then join the worker. Bounded: if
// the worker does not exit within the grace period, a warning is logged and
// the call returns. Idempotent.
func (c *Coordinator) StopSession() {
	c.mu.Lock()
	if !c.state.active() {
		c.mu.Unlock()
		return
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	if c.listener != nil {
		c.listener.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(c.config.StopGracePeriod):
		c.logError("", log.RoleNone, "stop",
			fmt.Errorf("session worker did not exit within %s", c.config.StopGracePeriod))
	}
}

// persistPeer writes a trust-store record for a successfully paired peer.
// Write failures are logged and returned; the pairing itself stands.
func (c *Coordinator) persistPeer(sid string, role log.Role, hostname, ip string, port int) error {
	if hostname == "" {
		hostname = unknownHostname
	}
	record := state.PairedDevice{
		Hostname: hostname,
		IP:       ip,
		Port:     port,
		PairedAt: time.Now().Unix(),
	}
	if err := c.store.AddOrUpdate(record.DeviceID(), record); err != nil {
		c.logError(sid, role, "persist", err)
		return fmt.Errorf("paired, but trust store write failed: %w", err)
	}
	return nil
}

// rememberPeer records the peer's hostname for the session outcome.
func (c *Coordinator) rememberPeer(sid, hostname string) {
	if hostname == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == sid {
		c.peerHostname = hostname
	}
}

// adoptConn records the session's active connection so StopSession can
// unblock it.
func (c *Coordinator) adoptConn(sid string, conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == sid {
		c.conn = conn
	}
}

// setState transitions an active session to a new non-terminal state.
func (c *Coordinator) setState(sid string, state SessionState, reason string) {
	c.mu.Lock()
	if c.sessionID != sid || c.state == state {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = state
	cb := c.onStateChange
	role := c.role
	c.mu.Unlock()

	c.notifyStateChange(cb, old, state, sid, logRole(role), reason)
}

// finish transitions an active session to a terminal state and releases its
// resources. A stale worker whose session was superseded does nothing.
func (c *Coordinator) finish(sid string, state SessionState, reason string) {
	c.mu.Lock()
	if c.sessionID != sid {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = state
	c.code = ""
	c.listener = nil
	c.conn = nil
	c.lastOutcome = Outcome{
		Success:      state == StatePaired,
		PeerHostname: c.peerHostname,
		Reason:       reason,
	}
	cb := c.onStateChange
	role := c.role
	c.mu.Unlock()

	if old != state {
		c.notifyStateChange(cb, old, state, sid, logRole(role), reason)
	}
}

// notifyStateChange invokes the state-change callback and logs the event.
// Never called with the lock held.
func (c *Coordinator) notifyStateChange(cb func(old, new SessionState), old, new SessionState, sid string, role log.Role, reason string) {
	if cb != nil {
		cb(old, new)
	}
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sid,
		Role:      role,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: new.String(),
			Reason:   reason,
		},
	})
}

// logWire records a wire message event.
func (c *Coordinator) logWire(sid string, role log.Role, dir log.Direction, remote string, data []byte) {
	c.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sid,
		Role:       role,
		Direction:  dir,
		Category:   log.CategoryWire,
		RemoteAddr: remote,
		Wire:       log.NewWireEvent(data),
	})
}

// logError records an error event.
func (c *Coordinator) logError(sid string, role log.Role, op string, err error) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sid,
		Role:      role,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: err.Error(), Op: "pairing." + op},
	})
}

// logRole maps a session role to the log event vocabulary.
func logRole(r Role) log.Role {
	if r == RoleResponder {
		return log.RoleResponder
	}
	return log.RoleInitiator
}

// remoteIP extracts the host part of an ip:port address.
func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// failureState maps a failure reason to the terminal state: cancellation is
// Cancelled, everything else Rejected.
func failureState(reason string) SessionState {
	if reason == ReasonCancelled {
		return StateCancelled
	}
	return StateRejected
}

// classifyDialError maps a dial failure to an outcome reason.
func classifyDialError(ctx context.Context, stop chan struct{}, err error) string {
	if stopped(ctx, stop) {
		return ReasonCancelled
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonConnectionRefused
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonConnectTimeout
	}
	return ReasonConnectionRefused
}

// classifyReadError maps a read failure to an outcome reason.
func classifyReadError(ctx context.Context, stop chan struct{}, err error) string {
	if stopped(ctx, stop) {
		return ReasonCancelled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonReadTimeout
	}
	return ReasonMalformedMessage
}

// stopped reports whether the session was cancelled by Stop or context.
func stopped(ctx context.Context, stop chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
