package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/omnipdfs/relay/internal/audit"
	"github.com/omnipdfs/relay/internal/auth"
	"github.com/omnipdfs/relay/internal/ierr"
	"go.uber.org/zap"
)

type Auditor interface {
	Dispatch(event audit.Event)
}

// Relay multiplexes document-scoped subscribers: it tracks presence per
// document and fans published messages out to co-located connections.
type Relay struct {
	logger         *zap.Logger
	registry       *Registry
	auditor        Auditor
	sendBufferSize int

	// mu orders registry mutations with the deliveries they trigger, so
	// every recipient observes presence updates and messages in the order
	// the relay processed them.
	mu  sync.Mutex
	seq uint64
}

func NewRelay(
	logger *zap.Logger,
	registry *Registry,
	auditor Auditor,
	sendBufferSize int,
) *Relay {
	if sendBufferSize < 1 {
		sendBufferSize = 1
	}

	return &Relay{
		logger:         logger,
		registry:       registry,
		auditor:        auditor,
		sendBufferSize: sendBufferSize,
	}
}

// Open registers a new connection for identity on documentId and sends the
// resulting presence view to every connection on the document, the new
// one included.
func (r *Relay) Open(documentId string, identity *auth.Identity) (*Connection, error) {
	if identity == nil || identity.UserId == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("identity required"))
	}

	connectionId, err := gonanoid.New()
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeInternal, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	connection := newConnection(connectionId, documentId, identity.UserId, identity.UserName, r.seq, r.sendBufferSize)

	err = r.registry.Add(connection)
	if err != nil {
		return nil, err
	}

	r.logger.Info("connection opened",
		zap.String("connectionId", connection.Id),
		zap.String("documentId", documentId),
		zap.String("userId", identity.UserId))

	r.broadcastPresenceLocked(documentId)

	return connection, nil
}

// Publish stamps message with the publisher's identity and delivers it to
// every other connection on the publisher's document. Document updates are
// additionally handed to the auditor once delivery is done.
func (r *Relay) Publish(connectionId string, inbound InboundMessage) error {
	if inbound.Type == "" {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("message type is required"))
	}

	if IsReserved(inbound.Type) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("reserved message type: "+inbound.Type))
	}

	r.mu.Lock()

	connection, ok := r.registry.Get(connectionId)
	if !ok {
		r.mu.Unlock()

		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection is not open"))
	}

	message := Message{
		Id:        gonanoid.Must(),
		Type:      inbound.Type,
		Data:      rawData(inbound.Data),
		UserId:    connection.UserId,
		UserName:  connection.UserName,
		Timestamp: time.Now().UTC(),
	}

	r.fanOutLocked(connection.DocumentId, message, connection.Id)

	r.mu.Unlock()

	if message.Type == TypeDocumentUpdate {
		r.auditor.Dispatch(audit.NewEvent(
			audit.KindDocumentUpdated,
			connection.DocumentId,
			audit.Actor{UserId: connection.UserId, UserName: connection.UserName},
			message.Data,
		))
	}

	return nil
}

// Notify delivers a server-originated message to every connection on
// documentId.
func (r *Relay) Notify(documentId string, messageType string, data any) (Message, error) {
	if messageType == "" {
		return Message{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("message type is required"))
	}

	if IsReserved(messageType) {
		return Message{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("reserved message type: "+messageType))
	}

	if raw, ok := data.(json.RawMessage); ok {
		data = rawData(raw)
	}

	message := Message{
		Id:        gonanoid.Must(),
		Type:      messageType,
		Data:      data,
		UserId:    SystemUserId,
		UserName:  SystemUserName,
		Timestamp: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.fanOutLocked(documentId, message, "")

	return message, nil
}

// Close removes the connection and sends the updated presence view to the
// connections left on its document. Closing an unknown or already closed
// connection is a no-op.
func (r *Relay) Close(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked(connectionId)
}

// CloseAll closes every open connection.
func (r *Relay) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, connectionId := range r.registry.Ids() {
		r.closeLocked(connectionId)
	}
}

func (r *Relay) ListPresence(documentId string) []Presence {
	return r.registry.Presence(documentId)
}

func (r *Relay) ConnectionCount() int {
	return r.registry.Len()
}

// IMPORTANT: It must be called only when mu is already held.
func (r *Relay) closeLocked(connectionId string) {
	connection, ok := r.registry.Remove(connectionId)
	if !ok {
		return
	}

	connection.close()

	r.logger.Info("connection closed",
		zap.String("connectionId", connection.Id),
		zap.String("documentId", connection.DocumentId),
		zap.String("userId", connection.UserId))

	r.broadcastPresenceLocked(connection.DocumentId)
}

// IMPORTANT: It must be called only when mu is already held.
func (r *Relay) broadcastPresenceLocked(documentId string) {
	connections := r.registry.Document(documentId)
	if len(connections) == 0 {
		return
	}

	users := make([]Presence, len(connections))
	for i, connection := range connections {
		users[i] = connection.presence()
	}

	message := Message{
		Id:   gonanoid.Must(),
		Type: TypePresenceUpdate,
		Data: PresenceUpdate{
			DocumentId: documentId,
			Users:      users,
		},
		Timestamp: time.Now().UTC(),
	}

	r.deliverLocked(connections, message, "")
}

// IMPORTANT: It must be called only when mu is already held.
func (r *Relay) fanOutLocked(documentId string, message Message, excludeConnectionId string) {
	r.deliverLocked(r.registry.Document(documentId), message, excludeConnectionId)
}

// deliverLocked queues message on every connection except
// excludeConnectionId. Connections that cannot take the message are closed
// once every other recipient has been served.
func (r *Relay) deliverLocked(connections []*Connection, message Message, excludeConnectionId string) {
	var staleConnectionIds []string

	for _, connection := range connections {
		if connection.Id == excludeConnectionId {
			continue
		}

		err := connection.deliver(message)
		if err != nil {
			r.logger.Warn("failed to deliver message, closing connection",
				zap.String("connectionId", connection.Id),
				zap.String("documentId", connection.DocumentId),
				zap.String("messageType", message.Type),
				zap.Error(err))

			staleConnectionIds = append(staleConnectionIds, connection.Id)
		}
	}

	for _, connectionId := range staleConnectionIds {
		r.closeLocked(connectionId)
	}
}

func rawData(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}

	return data
}

// Heartbeat answers a client heartbeat on its own connection only.
func (r *Relay) Heartbeat(connectionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connection, ok := r.registry.Get(connectionId)
	if !ok {
		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection is not open"))
	}

	r.deliverLocked([]*Connection{connection}, Message{
		Id:        gonanoid.Must(),
		Type:      TypeHeartbeat,
		Timestamp: time.Now().UTC(),
	}, "")

	return nil
}
