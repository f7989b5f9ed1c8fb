package subscriber

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle position of the subscription connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Subscribed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// legal lists, per state, the states it may move to.
var legal = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Connecting, Disconnected},
	Connected:    {Subscribed, Connecting, Disconnected},
	Subscribed:   {Connecting, Disconnected},
}

func canMove(from, to State) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Backoff grows linearly by Step per failed attempt and never exceeds Cap.
type Backoff struct {
	Step time.Duration
	Cap  time.Duration
}

// DefaultBackoff matches the historical reconnect policy: 50ms per attempt, at most 2s.
var DefaultBackoff = Backoff{Step: 50 * time.Millisecond, Cap: 2 * time.Second}

// Delay returns min(attempt*Step, Cap).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := time.Duration(attempt) * b.Step
	if d > b.Cap || d < 0 {
		return b.Cap
	}
	return d
}

// Snapshot is a point-in-time copy of a Connection.
type Snapshot struct {
	State   State
	Attempt int
}

// Connection tracks the subscriber's state and its consecutive failed
// handshakes. It is owned by one supervisor; the mutex only protects
// readers such as the status endpoint.
type Connection struct {
	backoff  Backoff
	onChange func(from, to State)

	mu      sync.Mutex
	state   State
	attempt int
}

// NewConnection starts Disconnected. onChange, if set, runs after every
// transition while no lock is held.
func NewConnection(backoff Backoff, onChange func(from, to State)) *Connection {
	return &Connection{backoff: backoff, onChange: onChange}
}

// MoveTo transitions the connection, rejecting moves the lifecycle forbids.
func (c *Connection) MoveTo(to State) error {
	c.mu.Lock()
	from := c.state
	if !canMove(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	c.state = to
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(from, to)
	}
	return nil
}

// Failed records a failed handshake and returns how long to wait before the
// next one.
func (c *Connection) Failed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt++
	return c.backoff.Delay(c.attempt)
}

// Established resets the attempt counter once a subscription has delivered.
func (c *Connection) Established() {
	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Attempt: c.attempt}
}
