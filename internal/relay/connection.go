package relay

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrSendBufferFull   = errors.New("connection send buffer is full")
)

type State int

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one subscriber session bound to a single document. Messages
// queued with deliver are drained by the transport through Send.
type Connection struct {
	Id         string
	DocumentId string
	UserId     string
	UserName   string
	OpenTime   time.Time

	seq  uint64
	send chan Message

	mu     sync.Mutex
	state  State
	closed chan struct{}
}

func newConnection(id string, documentId string, userId string, userName string, seq uint64, bufferSize int) *Connection {
	return &Connection{
		Id:         id,
		DocumentId: documentId,
		UserId:     userId,
		UserName:   userName,
		OpenTime:   time.Now().UTC(),
		seq:        seq,
		send:       make(chan Message, bufferSize),
		state:      StateOpen,
		closed:     make(chan struct{}),
	}
}

// Send is the outgoing queue. It is closed once the connection is closed
// and its remaining messages are drained.
func (c *Connection) Send() <-chan Message {
	return c.send
}

// Closed is closed when the connection leaves the Open state.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Connection) presence() Presence {
	return Presence{
		UserId:   c.UserId,
		UserName: c.UserName,
	}
}

func (c *Connection) deliver(message Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close moves the connection to Closed. It reports false if it was already
// closed.
func (c *Connection) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false
	}

	c.state = StateClosed
	close(c.send)
	close(c.closed)

	return true
}
