package relay

import (
	"errors"
	"slices"
	"sync"

	"github.com/omnipdfs/relay/internal/ierr"
)

// Registry is the set of open connections, indexed by connection id and by
// document id. All methods are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	connections           map[string]*Connection
	connectionsByDocument map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		connections:           make(map[string]*Connection),
		connectionsByDocument: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Add(connection *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connection.Id]; ok {
		return ierr.New(ierr.ErrorCodeAlreadyExists, errors.New("connection already registered"))
	}

	if _, ok := r.connectionsByDocument[connection.DocumentId]; !ok {
		r.connectionsByDocument[connection.DocumentId] = make(map[string]struct{})
	}

	r.connectionsByDocument[connection.DocumentId][connection.Id] = struct{}{}
	r.connections[connection.Id] = connection

	return nil
}

// Remove deletes the connection and returns it. It reports false if the
// connection was not registered.
func (r *Registry) Remove(connectionId string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connection, ok := r.connections[connectionId]
	if !ok {
		return nil, false
	}

	documentConnections, ok := r.connectionsByDocument[connection.DocumentId]
	if !ok {
		panic("inconsistent state: document not found in connectionsByDocument")
	}

	delete(documentConnections, connectionId)
	if len(documentConnections) == 0 {
		delete(r.connectionsByDocument, connection.DocumentId)
	}

	delete(r.connections, connectionId)

	return connection, true
}

func (r *Registry) Get(connectionId string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connection, ok := r.connections[connectionId]

	return connection, ok
}

// Document returns the connections open on documentId in the order they
// were opened.
func (r *Registry) Document(documentId string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connectionIds := r.connectionsByDocument[documentId]

	connections := make([]*Connection, 0, len(connectionIds))
	for connectionId := range connectionIds {
		connections = append(connections, r.connections[connectionId])
	}

	slices.SortFunc(connections, func(a, b *Connection) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})

	return connections
}

func (r *Registry) Presence(documentId string) []Presence {
	connections := r.Document(documentId)

	presence := make([]Presence, len(connections))
	for i, connection := range connections {
		presence[i] = connection.presence()
	}

	return presence
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

func (r *Registry) Ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}

	return ids
}
