package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/logger"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Configuration struct for the broadcast gateway. Only this struct must be
// used to hold any configuration values, no direct access to env, ini or any
// other config source should be made.
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"broadcast_gateway"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`

	HttpListenAddr string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	TelegramBotToken       string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIBaseURL     string        `env:"TELEGRAM_API_BASE_URL" default:"https://api.telegram.org"`
	TelegramRequestTimeout time.Duration `env:"TELEGRAM_REQUEST_TIMEOUT" default:"10s"`
	TelegramGlobalRate     int           `env:"TELEGRAM_GLOBAL_RATE" default:"30"`

	DispatcherBatchSize int `env:"DISPATCHER_BATCH_SIZE" default:"30"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
