package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MATCHBOOK_REDIS_ADDR
const EnvPrefix = "MATCHBOOK"

// Config represents the application configuration
type Config struct {
	Server struct {
		GRPCAddr    string   `yaml:"grpc_addr"`
		HTTPAddr    string   `yaml:"http_addr"`
		LogLevel    string   `yaml:"log_level"`
		LogFormat   string   `yaml:"log_format"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Engine struct {
		// Symbols is the allow-list of tradable symbols; empty allows any
		Symbols          []string `yaml:"symbols"`
		SnapshotDepth    int      `yaml:"snapshot_depth"`
		TriggerReference string   `yaml:"trigger_reference"`
	} `yaml:"engine"`

	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Addr        string        `yaml:"addr"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		Prefix      string        `yaml:"prefix"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled    bool   `yaml:"enabled"`
		Client     string `yaml:"client"`
		BrokerAddr string `yaml:"broker_addr"`
		Topic      string `yaml:"topic"`
	} `yaml:"kafka"`

	Telemetry struct {
		Enabled        bool   `yaml:"enabled"`
		Endpoint       string `yaml:"endpoint"`
		ServiceVersion string `yaml:"service_version"`
	} `yaml:"telemetry"`
}

// Kafka client implementations
const (
	KafkaClientKafkaGo = "kafka-go"
	KafkaClientSarama  = "sarama"
)

// LoadConfig builds the configuration from flag defaults, the optional YAML
// file, an optional .env file and finally MATCHBOOK_* environment variables
func LoadConfig(args []string) (*Config, error) {
	flags := flag.NewFlagSet("matchbook", flag.ContinueOnError)
	configFile := flags.String("config", "", "Path to config file (YAML)")
	envFile := flags.String("env_file", ".env", "Path to an optional .env file")
	grpcPort := flags.Int("grpc_port", 50051, "The gRPC server port")
	httpPort := flags.Int("http_port", 8080, "The HTTP server port")
	logLevel := flags.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat := flags.String("log_format", "pretty", "Log format: json, pretty")
	symbols := flags.String("symbols", "", "Comma separated allow-list of symbols")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	config := &Config{}
	config.Server.GRPCAddr = fmt.Sprintf(":%d", *grpcPort)
	config.Server.HTTPAddr = fmt.Sprintf(":%d", *httpPort)
	config.Server.LogLevel = *logLevel
	config.Server.LogFormat = *logFormat
	config.Server.CORSOrigins = []string{"*"}
	config.Engine.Symbols = splitList(*symbols)
	config.Engine.SnapshotDepth = 10
	config.Engine.TriggerReference = "best_ask"
	config.Redis.Addr = "localhost:6379"
	config.Redis.Prefix = "matchbook"
	config.Redis.SnapshotTTL = time.Minute
	config.Kafka.Client = KafkaClientKafkaGo
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.Topic = "matchbook-events"
	config.Telemetry.Endpoint = "localhost:4317"

	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Info().Str("file", *configFile).Msg("Loaded configuration file")
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// applyEnv lets MATCHBOOK_<SECTION>_<KEY> variables override any value
func applyEnv(c *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.grpc_addr", c.Server.GRPCAddr)
	v.SetDefault("server.http_addr", c.Server.HTTPAddr)
	v.SetDefault("server.log_level", c.Server.LogLevel)
	v.SetDefault("server.log_format", c.Server.LogFormat)
	v.SetDefault("server.cors_origins", strings.Join(c.Server.CORSOrigins, ","))
	v.SetDefault("engine.symbols", strings.Join(c.Engine.Symbols, ","))
	v.SetDefault("engine.snapshot_depth", c.Engine.SnapshotDepth)
	v.SetDefault("engine.trigger_reference", c.Engine.TriggerReference)
	v.SetDefault("redis.enabled", c.Redis.Enabled)
	v.SetDefault("redis.addr", c.Redis.Addr)
	v.SetDefault("redis.password", c.Redis.Password)
	v.SetDefault("redis.db", c.Redis.DB)
	v.SetDefault("redis.prefix", c.Redis.Prefix)
	v.SetDefault("redis.snapshot_ttl", c.Redis.SnapshotTTL)
	v.SetDefault("kafka.enabled", c.Kafka.Enabled)
	v.SetDefault("kafka.client", c.Kafka.Client)
	v.SetDefault("kafka.broker_addr", c.Kafka.BrokerAddr)
	v.SetDefault("kafka.topic", c.Kafka.Topic)
	v.SetDefault("telemetry.enabled", c.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", c.Telemetry.Endpoint)
	v.SetDefault("telemetry.service_version", c.Telemetry.ServiceVersion)

	c.Server.GRPCAddr = v.GetString("server.grpc_addr")
	c.Server.HTTPAddr = v.GetString("server.http_addr")
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.LogFormat = v.GetString("server.log_format")
	c.Server.CORSOrigins = splitList(v.GetString("server.cors_origins"))
	c.Engine.Symbols = splitList(v.GetString("engine.symbols"))
	c.Engine.SnapshotDepth = v.GetInt("engine.snapshot_depth")
	c.Engine.TriggerReference = v.GetString("engine.trigger_reference")
	c.Redis.Enabled = v.GetBool("redis.enabled")
	c.Redis.Addr = v.GetString("redis.addr")
	c.Redis.Password = v.GetString("redis.password")
	c.Redis.DB = v.GetInt("redis.db")
	c.Redis.Prefix = v.GetString("redis.prefix")
	c.Redis.SnapshotTTL = v.GetDuration("redis.snapshot_ttl")
	c.Kafka.Enabled = v.GetBool("kafka.enabled")
	c.Kafka.Client = v.GetString("kafka.client")
	c.Kafka.BrokerAddr = v.GetString("kafka.broker_addr")
	c.Kafka.Topic = v.GetString("kafka.topic")
	c.Telemetry.Enabled = v.GetBool("telemetry.enabled")
	c.Telemetry.Endpoint = v.GetString("telemetry.endpoint")
	c.Telemetry.ServiceVersion = v.GetString("telemetry.service_version")
}

// Validate checks values that would otherwise fail late at startup
func (c *Config) Validate() error {
	if c.Engine.SnapshotDepth <= 0 {
		return fmt.Errorf("engine.snapshot_depth must be positive")
	}
	if c.Kafka.Enabled {
		switch c.Kafka.Client {
		case KafkaClientKafkaGo, KafkaClientSarama:
		default:
			return fmt.Errorf("kafka.client must be %q or %q, got %q", KafkaClientKafkaGo, KafkaClientSarama, c.Kafka.Client)
		}
		if c.Kafka.BrokerAddr == "" {
			return fmt.Errorf("kafka.broker_addr must not be empty")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must not be empty")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
