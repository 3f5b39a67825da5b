package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	BusInProcess = "inprocess"
	BusKafka     = "kafka"
)

type Config struct {
	Server       Server      `mapstructure:"server"`
	Postgres     Postgres    `mapstructure:"postgres"`
	Storage      Storage     `mapstructure:"storage"`
	Broker       Broker      `mapstructure:"broker"`
	Bus          Bus         `mapstructure:"bus"`
	Cron         Cron        `mapstructure:"cron"`
	Relay        RelayConfig `mapstructure:"relay"`
	Payment      Payment     `mapstructure:"payment"`
	Notifier     Notifier    `mapstructure:"notifier"`
	HTTPClient   HTTPClient  `mapstructure:"httpClient"`
	LoggingLevel string      `mapstructure:"logging-level"`
	LogFormat    string      `mapstructure:"log-format"` // json or console
}

type Server struct {
	Port          string `mapstructure:"port"`
	SwaggerUrl    string `mapstructure:"swagger_json"`
	SwaggerHost   string `mapstructure:"swagger_host"`
	SwaggerSchema string `mapstructure:"swagger_schema"`
	BodyLimit     int    `mapstructure:"body_limit"`
}

type Postgres struct {
	ConnString     string `mapstructure:"conn_string"`
	MaxConnections int32  `mapstructure:"max_connections"`
	MinConnections int32  `mapstructure:"min_connections"`
	MigrationsDir  string `mapstructure:"migrations_dir"`

	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// Storage selects the repository implementation: "postgres" or "memory".
type Storage struct {
	Driver string `mapstructure:"driver"`
}

type Broker struct {
	Kafka Kafka `mapstructure:"kafka"`
}

type Kafka struct {
	Brokers       string `mapstructure:"brokers"`
	Topic         string `mapstructure:"topic"`
	ConsumerGroup string `mapstructure:"consumerGroup"`
	ReaderUsr     string `mapstructure:"readerUsr"`
	ReaderUsrPwd  string `mapstructure:"readerUsrPwd"`
	WriterUsr     string `mapstructure:"writerUsr"`
	WriterUsrPwd  string `mapstructure:"writerUsrPwd"`
	MaxAttempts   int    `mapstructure:"maxAttempts"`
	// MaxDeliveries bounds redelivery of a message whose subscribers keep failing.
	MaxDeliveries int `mapstructure:"maxDeliveries"`
}

// Bus selects the event bus backend: "inprocess" or "kafka".
type Bus struct {
	Driver string `mapstructure:"driver"`
	// RetryFailedHandlers lets the relay redeliver events whose in-process subscribers failed.
	RetryFailedHandlers bool `mapstructure:"retryFailedHandlers"`
}

type Cron struct {
	Schedule string `mapstructure:"schedule"` // cron format, e.g. "0 */5 * * * *"
	Interval string `mapstructure:"interval"` // "@every 1m"
	// Schedule wins over Interval when both are set
}

type RelayConfig struct {
	BatchSize  int           `mapstructure:"batchSize"`
	Lease      time.Duration `mapstructure:"lease"`
	PollPeriod time.Duration `mapstructure:"pollPeriod"`
	MaxRetries int           `mapstructure:"maxRetries"`
	// Instance identifies this relay in claimed_by; generated when empty.
	Instance string `mapstructure:"instance"`
}

type Payment struct {
	SuccessRate   float64 `mapstructure:"successRate"`
	DefaultMethod string  `mapstructure:"defaultMethod"`
}

type Notifier struct {
	URL  string `mapstructure:"url"` // empty: notifications are only logged
	From string `mapstructure:"from"`
}

type HTTPClient struct {
	ConnectTimeout        time.Duration `mapstructure:"connectTimeout"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"TLSHandshakeTimeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"responseHeaderTimeout"`
	ExpectContinueTimeout time.Duration `mapstructure:"expectContinueTimeout"`

	IdleConnTimeout     time.Duration `mapstructure:"idleConnTimeout"`
	MaxIdleConns        int           `mapstructure:"maxIdleConns"`
	MaxIdleConnsPerHost int           `mapstructure:"maxIdleConnsPerHost"`
	MaxConnsPerHost     int           `mapstructure:"maxConnsPerHost"`
	KeepAlives          bool          `mapstructure:"keepAlives"`

	// 0 means the deadline comes from the request context.
	ClientTimeout time.Duration `mapstructure:"clientTimeout"`

	UserAgent  string `mapstructure:"userAgent"`
	MaxRetries int    `mapstructure:"maxRetries"`

	InsecureSkipVerify bool `mapstructure:"insecureSkipVerify"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.swagger_schema", "http")
	v.SetDefault("server.body_limit", 4*1024*1024)

	v.SetDefault("postgres.max_connections", 5)
	v.SetDefault("postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("postgres.migrations_dir", "resources/migrations")
	v.SetDefault("storage.driver", StoragePostgres)

	v.SetDefault("broker.kafka.brokers", "localhost:9092")
	v.SetDefault("broker.kafka.topic", "marketplace.events")
	v.SetDefault("broker.kafka.consumerGroup", "marketplace-saga")
	v.SetDefault("broker.kafka.maxAttempts", 3)
	v.SetDefault("broker.kafka.maxDeliveries", 5)
	v.SetDefault("bus.driver", BusInProcess)

	v.SetDefault("cron.interval", "@every 1m")

	v.SetDefault("relay.batchSize", 10)
	v.SetDefault("relay.lease", 30*time.Second)
	v.SetDefault("relay.pollPeriod", 2*time.Second)
	v.SetDefault("relay.maxRetries", 10)

	v.SetDefault("payment.successRate", 0.2)
	v.SetDefault("payment.defaultMethod", "CreditCard")

	v.SetDefault("notifier.from", "no-reply@marketplace.local")

	v.SetDefault("httpClient.connectTimeout", 3*time.Second)
	v.SetDefault("httpClient.TLSHandshakeTimeout", 3*time.Second)
	v.SetDefault("httpClient.responseHeaderTimeout", 5*time.Second)
	v.SetDefault("httpClient.idleConnTimeout", 90*time.Second)
	v.SetDefault("httpClient.maxIdleConns", 20)
	v.SetDefault("httpClient.maxIdleConnsPerHost", 10)
	v.SetDefault("httpClient.keepAlives", true)
	v.SetDefault("httpClient.maxRetries", 3)

	v.SetDefault("logging-level", "info")
	v.SetDefault("log-format", "json")
}

func NewConfig() (Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	v.AutomaticEnv()
	// RELAY_BATCHSIZE -> relay.batchSize, LOGGING_LEVEL -> logging-level
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	var conf Config
	err := v.ReadInConfig()
	// no .env is fine, environment variables are enough
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, err
		}
	}

	err = v.Unmarshal(&conf)

	return conf, err
}
