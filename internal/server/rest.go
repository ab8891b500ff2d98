package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/omnipdfs/relay/internal/auth"
	"github.com/omnipdfs/relay/internal/ierr"
	"github.com/omnipdfs/relay/internal/relay"
	"go.uber.org/zap"
)

type NotifyRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type PresenceResponse struct {
	DocumentId string           `json:"documentId"`
	Users      []relay.Presence `json:"users"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

type RESTServer struct {
	logger              *zap.Logger
	authenticator       *auth.Authenticator
	documentIdValidator *DocumentIdValidator
	relay               *relay.Relay
}

func NewRESTServer(
	logger *zap.Logger,
	authenticator *auth.Authenticator,
	documentIdValidator *DocumentIdValidator,
	relay *relay.Relay,
) *RESTServer {
	return &RESTServer{
		logger,
		authenticator,
		documentIdValidator,
		relay,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/documents/{documentId}/presence", s.cors(s.authenticated(s.handlePresence))).
		Methods("GET", "OPTIONS")
	router.HandleFunc("/documents/{documentId}/notify", s.cors(s.authenticated(s.handleNotify))).
		Methods("POST", "OPTIONS")
	router.HandleFunc("/healthz", s.handleHealth).
		Methods("GET")
}

func (s *RESTServer) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		next(w, r)
	}
}

func (s *RESTServer) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.authenticator.AuthenticateRequest(r)
		if err != nil {
			writeError(s.logger, w, err)
			return
		}

		next(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	}
}

func (s *RESTServer) handlePresence(w http.ResponseWriter, r *http.Request) {
	documentId := mux.Vars(r)["documentId"]
	err := s.documentIdValidator.Validate(documentId)
	if err != nil {
		writeError(s.logger, w, err)
		return
	}

	writeJSON(s.logger, w, http.StatusOK, PresenceResponse{
		DocumentId: documentId,
		Users:      s.relay.ListPresence(documentId),
	})
}

func (s *RESTServer) handleNotify(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || !identity.IsAdmin {
		writeError(s.logger, w, ierr.New(ierr.ErrorCodePermissionDenied, errors.New("api key required to notify")))
		return
	}

	documentId := mux.Vars(r)["documentId"]
	err := s.documentIdValidator.Validate(documentId)
	if err != nil {
		writeError(s.logger, w, err)
		return
	}

	var notifyRequest NotifyRequest
	err = json.NewDecoder(r.Body).Decode(&notifyRequest)
	if err != nil {
		writeError(s.logger, w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
		return
	}

	message, err := s.relay.Notify(documentId, notifyRequest.Type, notifyRequest.Data)
	if err != nil {
		s.logger.Warn("failed to handle notify request",
			zap.String("documentId", documentId),
			zap.Error(err))
		writeError(s.logger, w, err)
		return
	}

	writeJSON(s.logger, w, http.StatusOK, message)
}

func (s *RESTServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Connections: s.relay.ConnectionCount(),
	})
}
