package signal

import (
	"sync"
	"time"

	"github.com/vigia-cam/vigia/internal/domain"
)

// connState is the per-connection lifecycle:
// Connecting → Authenticated → Registered → Closed.
// Transitions outside this table are rejected by the handlers.
type connState int

const (
	stateConnecting connState = iota
	stateAuthenticated
	stateRegistered
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateRegistered:
		return "registered"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// connection is the state bound to one socket. The identity is written once
// on successful authentication and never changes; the auth timer is the
// only cancellable operation.
type connection struct {
	id domain.ConnID
	tr transport

	mu        sync.Mutex
	state     connState
	identity  domain.Identity
	authTimer *time.Timer
}

func newConnection(id domain.ConnID, tr transport) *connection {
	return &connection{id: id, tr: tr, state: stateConnecting}
}

func (c *connection) current() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) who() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// bind moves Connecting → Authenticated and stops the auth timer.
func (c *connection) bind(id domain.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnecting {
		return false
	}
	c.state = stateAuthenticated
	c.identity = id
	c.stopTimerLocked()
	return true
}

// register moves Authenticated → Registered. Registration happens at most
// once per connection lifetime; a repeat is a protocol error.
func (c *connection) register() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateAuthenticated {
		return false
	}
	c.state = stateRegistered
	return true
}

// shutdown moves any state to Closed, returning the previous state so the
// caller can tell whether registry cleanup still applies.
func (c *connection) shutdown() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = stateClosed
	c.stopTimerLocked()
	return prev
}

func (c *connection) stopTimerLocked() {
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
}
