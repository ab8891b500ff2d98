package audit

import (
	"context"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const KindDocumentUpdated = "document.updated"

type Actor struct {
	UserId   string `json:"userId" bson:"userId"`
	UserName string `json:"userName" bson:"userName"`
}

type Event struct {
	Id         string    `json:"id"`
	Kind       string    `json:"kind"`
	DocumentId string    `json:"documentId"`
	Actor      Actor     `json:"actor"`
	Details    any       `json:"details,omitempty"`
	CreateTime time.Time `json:"createTime"`
}

func NewEvent(kind string, documentId string, actor Actor, details any) Event {
	return Event{
		Id:         gonanoid.Must(),
		Kind:       kind,
		DocumentId: documentId,
		Actor:      actor,
		Details:    details,
		CreateTime: time.Now().UTC(),
	}
}

// Recorder appends events to a durable audit log.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// LogRecorder only logs events. It is used when no audit backend is
// configured.
type LogRecorder struct {
	logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{
		logger,
	}
}

func (r *LogRecorder) Record(ctx context.Context, event Event) error {
	r.logger.Debug("audit event",
		zap.String("eventId", event.Id),
		zap.String("kind", event.Kind),
		zap.String("documentId", event.DocumentId),
		zap.String("userId", event.Actor.UserId))

	return nil
}
