package internal

import (
	"fmt"
	"time"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	AdminPort      int    `env:"ADMIN_PORT,default=9090"`
	DebugPort      int    `env:"DEBUG_PORT,default=0"`

	JWTSecret      string `env:"JWT_SECRET,required=true"`
	InternalAPIKey string `env:"INTERNAL_API_KEY,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	InboundBufferSize    int           `env:"INBOUND_BUFFER_SIZE,default=32"`
	PushTimeout          time.Duration `env:"PUSH_TIMEOUT,default=2s"`
	TypingWindow         time.Duration `env:"TYPING_WINDOW,default=3s"`
	InboundRate          float64       `env:"INBOUND_RATE,default=20"`
	InboundBurst         int           `env:"INBOUND_BURST,default=40"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	RetentionCron   string        `env:"RETENTION_CRON,default=0 3 * * *"`
	RetentionMaxAge time.Duration `env:"RETENTION_MAX_AGE,default=720h"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=15s"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=false"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
	MaxContentLength  int    `env:"MAX_CONTENT_LENGTH,default=5000"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
