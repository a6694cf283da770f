package internal

import (
	goerrors "errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	BadgerDriver = "badger"
	SQLiteDriver = "sqlite"
)

type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080" validate:"gt=0,lte=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger" validate:"oneof=badger sqlite"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=data/badger"`
	SQLiteFilepath string `env:"SQLITE_FILEPATH,default=data/circles.db"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH"`

	JWTSecret         string        `env:"JWT_SECRET,required=true" validate:"min=16"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h" validate:"gt=0s"`

	RedisURL     string `env:"REDIS_URL"`
	RedisPrefix  string `env:"REDIS_PREFIX,default=circles:"`
	AllowOrigins string `env:"ALLOW_ORIGINS"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"gt=0"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=25s" validate:"gt=0s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gt=0s"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0s"`
	SearchBatchSize      int           `env:"SEARCH_BATCH_SIZE,default=100" validate:"gt=0"`
	SearchBufferTimeout  time.Duration `env:"SEARCH_BUFFER_TIMEOUT,default=500ms" validate:"gt=0s"`
	MaxPageSize          int           `env:"MAX_PAGE_SIZE,default=100" validate:"gt=0"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s" validate:"gt=0s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0s"`
}

var validate = newValidator()

// newValidator reports fields under their environment variable names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("env"), ",")
		return name
	})
	return v
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate rejects values the server cannot run with, such as a zero ticker interval.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !goerrors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return err
	}
	fe := fieldErrors[0]
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s must be %q or %q, got %q", fe.Field(), BadgerDriver, SQLiteDriver, fe.Value())
	case "min":
		return fmt.Errorf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "gt":
		return fmt.Errorf("%s must be positive, got %v", fe.Field(), fe.Value())
	default:
		return fmt.Errorf("%s is invalid (%s %s), got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
}
