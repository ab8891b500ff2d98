package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/omnipdfs/relay/internal/audit"
	"github.com/omnipdfs/relay/internal/auth"
	"github.com/omnipdfs/relay/internal/relay"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "test-secret"
	testAPIKey = "test-api-key"
)

type testServer struct {
	*httptest.Server

	relay *relay.Relay
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	authenticator := auth.NewAuthenticator(testSecret, []string{testAPIKey})
	documentIdValidator := NewDocumentIdValidator()
	dispatcher := audit.NewDispatcher(logger, audit.NewLogRecorder(logger), 16, time.Second)
	r := relay.NewRelay(logger, relay.NewRegistry(), dispatcher, 16)

	wsServer := NewWebSocketServer(
		logger,
		&websocket.Upgrader{CheckOrigin: NewOriginChecker([]string{"*"}).Check},
		authenticator,
		documentIdValidator,
		r,
		WebSocketOptions{
			MaxMessageBytes: 4096,
			PingInterval:    time.Minute,
			PongWait:        2 * time.Minute,
		},
	)
	restServer := NewRESTServer(logger, authenticator, documentIdValidator, r)

	router := mux.NewRouter()
	wsServer.Register(router)
	restServer.Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		r.CloseAll()
		server.Close()
		dispatcher.Stop()
	})

	return &testServer{
		Server: server,
		relay:  r,
	}
}

func signUserToken(t *testing.T, userId string, userName string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  userId,
		"name": userName,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
		"aud":  auth.Audience,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	return tokenString
}
