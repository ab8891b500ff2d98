package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/omnipdfs/relay/internal/audit"
	"github.com/omnipdfs/relay/internal/audit/mongodb"
	auditredis "github.com/omnipdfs/relay/internal/audit/redis"
	"github.com/omnipdfs/relay/internal/auth"
	"github.com/omnipdfs/relay/internal/relay"
	"github.com/omnipdfs/relay/internal/server"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	relay           *relay.Relay
	dispatcher      *audit.Dispatcher
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
	closers         []func(ctx context.Context) error
}

func NewApp(logger *zap.Logger, settings Settings) *App {
	return &App{
		logger:   logger,
		settings: settings,
	}
}

func (a *App) setup(ctx context.Context) error {
	recorder, err := a.buildRecorder(ctx)
	if err != nil {
		return err
	}

	a.dispatcher = audit.NewDispatcher(
		a.logger.Named("audit"),
		recorder,
		a.settings.AuditBufferSize,
		a.settings.AuditTimeout(),
	)

	a.relay = relay.NewRelay(
		a.logger.Named("relay"),
		relay.NewRegistry(),
		a.dispatcher,
		a.settings.SendBufferSize,
	)

	originChecker := server.NewOriginChecker(a.settings.AllowedOriginList())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	authenticator := auth.NewAuthenticator(a.settings.JWTSecret, a.settings.APIKeyList())
	documentIdValidator := server.NewDocumentIdValidator()

	a.websocketServer = server.NewWebSocketServer(
		a.logger,
		websocketUpgrader,
		authenticator,
		documentIdValidator,
		a.relay,
		server.WebSocketOptions{
			MaxMessageBytes: int64(a.settings.MaxMessageBytes),
			PingInterval:    a.settings.PingInterval(),
			PongWait:        a.settings.PongWait(),
		},
	)
	a.restServer = server.NewRESTServer(
		a.logger,
		authenticator,
		documentIdValidator,
		a.relay,
	)

	return nil
}

func (a *App) buildRecorder(ctx context.Context) (audit.Recorder, error) {
	switch a.settings.AuditBackend {
	case "none", "":
		return audit.NewLogRecorder(a.logger.Named("audit")), nil
	case "mongodb":
		client, err := mongo.Connect(options.Client().ApplyURI(a.settings.MongoDBURI))
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)

		recorder := mongodb.NewRecorder(client, a.settings.MongoDBDatabase)

		setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		err = recorder.Setup(setupCtx)
		if err != nil {
			return nil, fmt.Errorf("setup mongodb audit recorder: %w", err)
		}

		return recorder, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.settings.RedisAddr,
			Password: a.settings.RedisPassword,
		})
		a.closers = append(a.closers, func(context.Context) error {
			return client.Close()
		})

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		err := client.Ping(pingCtx).Err()
		if err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}

		return auditredis.NewRecorder(client, a.settings.RedisStream, int64(a.settings.RedisStreamMaxLen)), nil
	default:
		return nil, fmt.Errorf("unknown audit backend: %s", a.settings.AuditBackend)
	}
}

func (a *App) startHttpServer(ctx context.Context) {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address),
		zap.String("basePath", a.settings.BasePath),
		zap.String("auditBackend", a.settings.AuditBackend))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-notifyCtx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	a.relay.CloseAll()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http server shutdown failed",
			zap.Error(err))
	}

	a.dispatcher.Stop()

	for _, closer := range a.closers {
		err := closer(shutdownCtx)
		if err != nil {
			a.logger.Warn("failed to close audit backend", zap.Error(err))
		}
	}

	a.logger.Info("http server stopped")
}

func main() {
	ctx := context.Background()

	bootstrapLogger, _ := zap.NewDevelopment()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		bootstrapLogger.Fatal("failed to parse settings from environment", zap.Error(err))
	}

	logger, err := buildZapLogger(settings.LogEncoding)
	if err != nil {
		bootstrapLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	app := NewApp(logger, settings)

	err = app.setup(ctx)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}

	app.startHttpServer(ctx)
}
