package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Aggregated error logs are shipped to kafka.log_topic when both are set.
		Collect         bool          `yaml:"collect"`
		CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
		CollectCount    int           `yaml:"collect_count" default:"100"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"3000" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		BodyLimit       string        `yaml:"body_limit" default:"64K"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins"` // empty allows any origin
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Dispatch struct {
		Workers             int           `yaml:"workers" default:"16" validate:"gt=0"`
		RunTimeout          time.Duration `yaml:"run_timeout" default:"25s" validate:"gt=0"`
		SendTimeout         time.Duration `yaml:"send_timeout" default:"5s" validate:"gt=0"`
		InvalidationTimeout time.Duration `yaml:"invalidation_timeout" default:"5s"`
	} `yaml:"dispatch"`
	Directory struct {
		Path         string `yaml:"path" default:"data/signalrelay.db" validate:"required"`
		MaxReadConns int    `yaml:"max_read_conns" default:"4"`
	} `yaml:"directory"`
	History struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port"` // 0 picks 9000 native or 8123 http
		Database         string        `yaml:"database" default:"default"`
		Table            string        `yaml:"table" default:"alert_history"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"history"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		IngestTopic  string   `yaml:"ingest_topic" default:"tradingview.alerts"`
		EventsTopic  string   `yaml:"events_topic" default:"signalrelay.alert-events"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID         string        `yaml:"group_id" default:"signalrelay"`
			AutoOffsetReset string        `yaml:"auto_offset_reset" default:"latest" validate:"oneof=earliest latest"`
			Workers         int           `yaml:"workers" default:"2"`
			BufferSize      int           `yaml:"buffer_size" default:"100"`
			RetryMax        int           `yaml:"retry_max" default:"3"`
			BackoffMin      time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax      time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic        string        `yaml:"dlq_topic" default:"tradingview.alerts.dlq"`
			MinBytes        int           `yaml:"min_bytes" default:"1"`
			MaxBytes        int           `yaml:"max_bytes" default:"10485760"`
			HandleTimeout   time.Duration `yaml:"handle_timeout" default:"30s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"signalrelay"`
		DedupTTL time.Duration `yaml:"dedup_ttl" default:"2m"`
		Queue    struct {
			Workers    int           `yaml:"workers" default:"2"`
			RetryLimit int           `yaml:"retry_limit" default:"5"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		} `yaml:"queue"`
	} `yaml:"redis"`
	Push struct {
		SNS struct {
			Enabled                bool   `yaml:"enabled"`
			Region                 string `yaml:"region" default:"us-east-1"`
			PlatformApplicationARN string `yaml:"platform_application_arn" validate:"required_if=Enabled true"`
			Endpoint               string `yaml:"endpoint"`
			APNSSandbox            bool   `yaml:"apns_sandbox"`
			AndroidChannelID       string `yaml:"android_channel_id" default:"trading_alerts"`
		} `yaml:"sns"`
		WebPush struct {
			Enabled         bool          `yaml:"enabled"`
			VAPIDPublicKey  string        `yaml:"vapid_public_key" validate:"required_if=Enabled true"`
			VAPIDPrivateKey string        `yaml:"vapid_private_key" validate:"required_if=Enabled true"`
			Subscriber      string        `yaml:"subscriber" validate:"required_if=Enabled true"`
			TTL             int           `yaml:"ttl" default:"60"`
			Urgency         string        `yaml:"urgency" default:"high" validate:"oneof=very-low low normal high"`
			Icon            string        `yaml:"icon" default:"/icons/icon-192.png"`
			Timeout         time.Duration `yaml:"timeout" default:"5s"`
		} `yaml:"webpush"`
	} `yaml:"push"`
	RateLimit struct {
		Enabled   bool    `yaml:"enabled"`
		Burst     float64 `yaml:"burst" default:"20" validate:"gt=0"`
		PerSecond float64 `yaml:"per_second" default:"5" validate:"gt=0"`
	} `yaml:"ratelimit"`
}

var validate = validator.New()

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load for an in-memory document.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Secrets are expected to come from the environment.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// decode applies defaults first so explicit zero values in YAML (false, 0) survive.
func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("DIRECTORY_PATH", &c.Directory.Path)
	str("CLICKHOUSE_PASSWORD", &c.History.Password)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("SNS_PLATFORM_APPLICATION_ARN", &c.Push.SNS.PlatformApplicationARN)
	str("VAPID_PUBLIC_KEY", &c.Push.WebPush.VAPIDPublicKey)
	str("VAPID_PRIVATE_KEY", &c.Push.WebPush.VAPIDPrivateKey)
	str("VAPID_SUBJECT", &c.Push.WebPush.Subscriber)

	if v, ok := lookup("PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Log.Collect && (!c.Kafka.Enabled || c.Kafka.LogTopic == "") {
		return fmt.Errorf("log.collect requires kafka.enabled and kafka.log_topic")
	}
	return nil
}
