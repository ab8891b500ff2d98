package main

import (
	"strings"
	"time"
)

type Settings struct {
	Port           int    `env:"PORT,default=8000"`
	BasePath       string `env:"BASE_PATH,default=/relay"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
	APIKeys        string `env:"API_KEYS"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
	LogEncoding    string `env:"LOG_ENCODING,default=console"`

	SendBufferSize      int `env:"SEND_BUFFER_SIZE,default=64"`
	MaxMessageBytes     int `env:"MAX_MESSAGE_BYTES,default=65536"`
	PingIntervalSeconds int `env:"PING_INTERVAL_SECONDS,default=25"`
	PongWaitSeconds     int `env:"PONG_WAIT_SECONDS,default=60"`

	AuditBackend        string `env:"AUDIT_BACKEND,default=none"`
	AuditBufferSize     int    `env:"AUDIT_BUFFER_SIZE,default=1024"`
	AuditTimeoutSeconds int    `env:"AUDIT_TIMEOUT_SECONDS,default=5"`
	MongoDBURI          string `env:"MONGODB_URI"`
	MongoDBDatabase     string `env:"MONGODB_DATABASE,default=omnipdfs"`
	RedisAddr           string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisStream         string `env:"REDIS_STREAM,default=omnipdfs:audit"`
	RedisStreamMaxLen   int    `env:"REDIS_STREAM_MAXLEN,default=100000"`
}

func (s Settings) APIKeyList() []string {
	return splitList(s.APIKeys)
}

func (s Settings) AllowedOriginList() []string {
	return splitList(s.AllowedOrigins)
}

func (s Settings) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalSeconds) * time.Second
}

func (s Settings) PongWait() time.Duration {
	return time.Duration(s.PongWaitSeconds) * time.Second
}

func (s Settings) AuditTimeout() time.Duration {
	return time.Duration(s.AuditTimeoutSeconds) * time.Second
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}

	return items
}
