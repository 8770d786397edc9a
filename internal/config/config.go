package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Company struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"company"`
	NATS NATSConfig `mapstructure:"nats"`
	Session struct {
		Window time.Duration `mapstructure:"window"` // Renewable customer-initiated session window
	} `mapstructure:"session"`
	OptOut struct {
		Keywords []string `mapstructure:"keywords"`
		AckText  string   `mapstructure:"ackText"`
	} `mapstructure:"optOut"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Provider ProviderConfig `mapstructure:"provider"`
	Metrics  struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Reply ReplyWorkerPoolConfig `mapstructure:"reply"`
	} `mapstructure:"workerPools"`
}

// NATSConfig holds settings for the conversation transition event stream.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Stream        string `mapstructure:"stream"`        // Stream for conversation transition events
	SubjectPrefix string `mapstructure:"subjectPrefix"` // Base subject (e.g. v1.conversations)
	MaxAgeDays    int    `mapstructure:"maxAgeDays"`    // Retention for transition events
}

// AgentConfig holds settings for the reply-generation collaborator.
type AgentConfig struct {
	Endpoint           string        `mapstructure:"endpoint"`
	APIKey             string        `mapstructure:"apiKey"`
	Timeout            time.Duration `mapstructure:"timeout"`
	HistoryLimit       int           `mapstructure:"historyLimit"`       // Most recent N messages sent as context
	EscalationKeywords []string      `mapstructure:"escalationKeywords"` // Safety net over generated reply text
}

// ProviderConfig holds settings for the outbound send API.
type ProviderConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"apiKey"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ReplyWorkerPoolConfig holds configuration for the reply orchestration worker pool
type ReplyWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("database.postgresAutoMigrate", true)

	v.SetDefault("nats.stream", "wa_conversation_events")
	v.SetDefault("nats.subjectPrefix", "v1.conversations")
	v.SetDefault("nats.maxAgeDays", 7)

	// Provider session windows are 24h on the platforms this service targets
	v.SetDefault("session.window", 24*time.Hour)

	v.SetDefault("optOut.keywords", []string{"stop", "sair", "parar", "cancelar", "unsubscribe"})
	v.SetDefault("optOut.ackText", "Você não receberá mais mensagens automáticas desta conta.")

	v.SetDefault("agent.timeout", 30*time.Second)
	v.SetDefault("agent.historyLimit", 20)
	v.SetDefault("agent.escalationKeywords", []string{"atendente", "humano", "transferir", "human agent"})

	v.SetDefault("provider.timeout", 15*time.Second)

	v.SetDefault("workerPools.reply.poolSize", 10)
	v.SetDefault("workerPools.reply.queueSize", 10000)
	v.SetDefault("workerPools.reply.maxBlock", time.Second)
	v.SetDefault("workerPools.reply.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.daisi-wa-reply-orchestrator")
	v.AddConfigPath("/etc/daisi-wa-reply-orchestrator")

	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if company := os.Getenv("COMPANY_ID"); company != "" {
		v.Set("company.id", company)
	}
	if endpoint := os.Getenv("AGENT_ENDPOINT"); endpoint != "" {
		v.Set("agent.endpoint", endpoint)
	}
	if endpoint := os.Getenv("PROVIDER_ENDPOINT"); endpoint != "" {
		v.Set("provider.endpoint", endpoint)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
