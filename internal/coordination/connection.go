package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cotrain/internal/config"
	"cotrain/pkg/interfaces"
	"cotrain/pkg/types"
)

// Connection states. closed-clean and closed-exhausted are terminal.
const (
	StateConnecting      = "connecting"
	StateOpen            = "open"
	StateClosedClean     = "closed-clean"
	StateClosedRetrying  = "closed-retrying"
	StateClosedExhausted = "closed-exhausted"
)

// Connection owns the coordination channel for one session: dialing, the
// reconnect state machine, and serialized outbound writes.
//
// ARCHITECTURAL DISCOVERY: At most one live socket exists per Connection at
// any instant - the run loop is the only place sockets are created, and it
// never dials while a previous socket is still attached
type Connection struct {
	cfg        *config.RealtimeConfig
	url        string
	identity   *types.SessionIdentity
	dispatcher *Dispatcher

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu       sync.RWMutex
	state    string
	conn     *websocket.Conn
	writeCh  chan []byte
	connDone chan struct{}
	retries  int
}

// NewConnection creates a coordination connection for the identity's session.
// Dialing does not start until Start is called.
func NewConnection(cfg *config.RealtimeConfig, wsBaseURL string, identity *types.SessionIdentity, dispatcher *Dispatcher) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		cfg:        cfg,
		url:        wsBaseURL + "/ws/" + identity.SessionID,
		identity:   identity.Clone(),
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateConnecting,
	}
}

var _ interfaces.RealtimeConn = (*Connection)(nil)

// Start launches the connection lifecycle. The settle delay runs before the
// first dial so rapid navigation does not churn sockets.
func (c *Connection) Start() {
	c.wg.Add(1)
	go c.run()
}

func (c *Connection) run() {
	defer c.wg.Done()

	select {
	case <-time.After(c.cfg.SettleDelay):
	case <-c.ctx.Done():
		return
	}

	for {
		c.setState(StateConnecting)

		conn, err := c.dial()
		if err != nil {
			log.Printf("Coordination: dial failed: %v", err)
			if !c.waitRetry() {
				return
			}
			continue
		}

		c.attach(conn)
		clean := c.readLoop(conn)
		c.detach(conn)

		if c.ctx.Err() != nil {
			return
		}
		if clean {
			c.setState(StateClosedClean)
			return
		}
		if !c.waitRetry() {
			return
		}
	}
}

func (c *Connection) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	return conn, nil
}

// attach installs the freshly opened socket, resets the retry counter, starts
// the writer, and announces presence.
func (c *Connection) attach(conn *websocket.Conn) {
	writeCh := make(chan []byte, c.cfg.BufferSize)
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.writeCh = writeCh
	c.connDone = done
	c.retries = 0
	c.mu.Unlock()
	c.setState(StateOpen)

	c.wg.Add(1)
	go c.writeLoop(conn, writeCh, done)

	if err := c.Send(NewPresencePayload(c.identity)); err != nil {
		log.Printf("Coordination: presence send failed: %v", err)
	}
}

func (c *Connection) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.writeCh = nil
		if c.connDone != nil {
			close(c.connDone)
			c.connDone = nil
		}
	}
	c.mu.Unlock()
	conn.Close()
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine per socket eliminates
// write races without locking around every send
func (c *Connection) writeLoop(conn *websocket.Conn, writeCh chan []byte, done chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case data := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// readLoop consumes frames until the socket dies. It reports whether the
// closure was a normal close (no retry) or abnormal (retry).
func (c *Connection) readLoop(conn *websocket.Conn) bool {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return true
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true
			}
			log.Printf("Coordination: channel lost: %v", err)
			return false
		}
		c.dispatcher.Dispatch(data)
	}
}

// waitRetry sleeps out the exponential backoff for the next attempt.
// Returns false when retries are exhausted or the connection was closed.
func (c *Connection) waitRetry() bool {
	c.mu.Lock()
	attempt := c.retries
	c.retries++
	c.mu.Unlock()

	if attempt >= c.cfg.MaxRetries {
		c.setState(StateClosedExhausted)
		log.Printf("Coordination: reconnect attempts exhausted after %d retries", c.cfg.MaxRetries)
		return false
	}

	// Delay for attempt n is base*2^n: 1s, 2s, 4s, 8s, 16s with the defaults.
	delay := c.cfg.BackoffBase << attempt
	c.setState(StateClosedRetrying)
	log.Printf("Coordination: retrying in %v (attempt %d/%d)", delay, attempt+1, c.cfg.MaxRetries)

	select {
	case <-time.After(delay):
		return true
	case <-c.ctx.Done():
		return false
	}
}

// setState mutates the connection state unless Close already happened.
// FUNCTIONAL DISCOVERY: The context gates every mutation - a retry timer
// firing after Close must observe no effect whatsoever
func (c *Connection) setState(state string) {
	if c.ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Connection) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Send serializes the payload and queues it for the writer. On a non-open
// channel the payload is dropped and nil returned - callers never fail on a
// transient disconnect.
func (c *Connection) Send(v any) error {
	c.mu.RLock()
	state, writeCh := c.state, c.writeCh
	c.mu.RUnlock()

	if state != StateOpen || writeCh == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode coordination payload: %w", err)
	}

	select {
	case writeCh <- data:
	default:
		log.Printf("Coordination: write buffer full, dropping payload")
	}
	return nil
}

// SendStatus reports this party's stage completion.
func (c *Connection) SendStatus(done bool) error {
	return c.Send(StatusUpdate{UserID: c.identity.UserID, Status: done})
}

// SendProceed signals all parties to advance. Lead only.
func (c *Connection) SendProceed() error {
	return c.Send(ProceedRequest{UserID: c.identity.UserID, Proceed: true})
}

// SendTraining signals training start. Lead only.
func (c *Connection) SendTraining() error {
	return c.Send(TrainingRequest{UserID: c.identity.UserID, Training: true})
}

// Close performs a normal-code closure: cancel any pending retry first, then
// close the socket with the normal close code. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		c.state = StateClosedClean
		conn := c.conn
		c.conn = nil
		c.writeCh = nil
		c.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
				log.Printf("Coordination: close handshake failed: %v", err)
			}
			conn.Close()
		}

		c.wg.Wait()
	})
	return nil
}
