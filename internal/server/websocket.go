package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/omnipdfs/relay/internal/auth"
	"github.com/omnipdfs/relay/internal/ierr"
	"github.com/omnipdfs/relay/internal/relay"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

type WebSocketOptions struct {
	MaxMessageBytes int64
	PingInterval    time.Duration
	PongWait        time.Duration
}

type WebSocketServer struct {
	logger              *zap.Logger
	upgrader            *websocket.Upgrader
	authenticator       *auth.Authenticator
	documentIdValidator *DocumentIdValidator
	relay               *relay.Relay
	options             WebSocketOptions
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	authenticator *auth.Authenticator,
	documentIdValidator *DocumentIdValidator,
	relay *relay.Relay,
	options WebSocketOptions,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		authenticator,
		documentIdValidator,
		relay,
		options,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/documents/{documentId}/ws", s.handle).Methods("GET")
}

func (s *WebSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "not an upgradeable request", http.StatusUpgradeRequired)
		return
	}

	identity, err := s.authenticator.AuthenticateRequest(r)
	if err != nil {
		s.logger.Debug("websocket authentication failed", zap.Error(err))
		writeError(s.logger, w, err)
		return
	}

	documentId := mux.Vars(r)["documentId"]
	err = s.documentIdValidator.Validate(documentId)
	if err != nil {
		writeError(s.logger, w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connection, err := s.relay.Open(documentId, identity)
	if err != nil {
		s.logger.Error("failed to open connection", zap.Error(err))

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, string(ierr.CodeOf(err))),
			time.Now().Add(writeWait))
		_ = conn.Close()

		return
	}

	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("documentId", documentId),
		zap.String("userId", identity.UserId),
		zap.String("clientIp", clientIp(r)))

	logger.Info("websocket connection established")

	go s.writeLoop(logger, conn, connection)

	s.readLoop(logger, conn, connection)

	s.relay.Close(connection.Id)

	logger.Info("websocket connection closed")
}

func (s *WebSocketServer) readLoop(logger *zap.Logger, conn *websocket.Conn, connection *relay.Connection) {
	conn.SetReadLimit(s.options.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.options.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.options.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", zap.Error(err))
			}

			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.options.PongWait))

		s.handleMessage(logger, connection, data)
	}
}

func (s *WebSocketServer) handleMessage(logger *zap.Logger, connection *relay.Connection, data []byte) {
	var inbound relay.InboundMessage
	err := json.Unmarshal(data, &inbound)
	if err != nil {
		logger.Warn("dropping malformed message", zap.Error(err))
		return
	}

	if inbound.Type == relay.TypeHeartbeat {
		err = s.relay.Heartbeat(connection.Id)
	} else {
		err = s.relay.Publish(connection.Id, inbound)
	}

	if err != nil {
		logger.Warn("dropping message",
			zap.String("messageType", inbound.Type),
			zap.Error(err))
	}
}

// writeLoop is the only writer of conn. It exits when the connection's
// send queue is closed or a write fails.
func (s *WebSocketServer) writeLoop(logger *zap.Logger, conn *websocket.Conn, connection *relay.Connection) {
	ticker := time.NewTicker(s.options.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message, ok := <-connection.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			err := conn.WriteJSON(message)
			if err != nil {
				logger.Warn("websocket write failed", zap.Error(err))
				s.relay.Close(connection.Id)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				logger.Warn("websocket ping failed", zap.Error(err))
				s.relay.Close(connection.Id)
				return
			}
		}
	}
}

func clientIp(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}

	return r.RemoteAddr
}
