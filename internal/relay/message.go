package relay

import (
	"encoding/json"
	"time"
)

const (
	TypePresenceUpdate = "presence-update"
	TypeDocumentUpdate = "document-update"
	TypeCursorUpdate   = "cursor-update"
	TypeCommentAdded   = "comment-added"
	TypeHeartbeat      = "heartbeat"
)

const (
	SystemUserId   = "system"
	SystemUserName = "OmniPDFs"
)

// InboundMessage is what a client sends; sender fields are never trusted
// from the wire.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is what the relay delivers to subscribers.
type Message struct {
	Id        string    `json:"id"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	UserId    string    `json:"userId,omitempty"`
	UserName  string    `json:"userName,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Presence struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
}

type PresenceUpdate struct {
	DocumentId string     `json:"documentId"`
	Users      []Presence `json:"users"`
}

// IsReserved reports whether clients are forbidden to publish the type.
func IsReserved(messageType string) bool {
	return messageType == TypePresenceUpdate || messageType == TypeHeartbeat
}
