package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gopherchat/backend/internal/logging"
)

// Config is the full configuration for both the chat server and the video
// signaling service. Values come from config.yaml with environment
// overrides; every key has a usable local-dev default.
type Config struct {
	Server    ServerConfig
	Video     VideoConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	Client    ClientConfig
	Log       logging.Config
}

type ServerConfig struct {
	Host string
	Port int
}

// VideoConfig addresses the signaling plane, which is a separate service
// from the chat plane.
type VideoConfig struct {
	Port    int
	RoomTTL time.Duration `mapstructure:"room_ttl"`
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// ClientConfig tunes the wsclient delivery-guarantee layer for embedders
// that load their settings from the same file.
type ClientConfig struct {
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	TypingWindow      time.Duration `mapstructure:"typing_window"`
	AckTimeout        time.Duration `mapstructure:"ack_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// Load reads config.yaml from path (falling back to the working directory)
// and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file: defaults plus environment are enough.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("video.port", 4000)
	v.SetDefault("video.room_ttl", 4*time.Hour)
	v.SetDefault("postgres.dsn",
		"host=localhost user=user password=password dbname=gopherchat port=5432 sslmode=disable")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.jwt_secret", "dev-only-secret")
	v.SetDefault("auth.token_ttl", 72*time.Hour)
	v.SetDefault("websocket.ping_interval", 54*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.max_message_size", 512*1024)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("client.reconnect_interval", 3*time.Second)
	v.SetDefault("client.typing_window", 1500*time.Millisecond)
	v.SetDefault("client.ack_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service", "gopherchat")
}
