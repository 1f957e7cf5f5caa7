package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Rollup   RollupConfig   `yaml:"rollup"`
	Presence PresenceConfig `yaml:"presence"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    string `yaml:"port" validate:"required,numeric"`
	OpsPort string `yaml:"ops_port" validate:"required,numeric,nefield=Port"`
	Env     string `yaml:"env" validate:"required"`
	WebRoot string `yaml:"web_root"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type" validate:"required,oneof=sqlite postgres"` // "sqlite" or "postgres"
	Path     string `yaml:"path" validate:"required_if=Type sqlite"`       // For SQLite: file path
	Host     string `yaml:"host" validate:"required_if=Type postgres"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	DSN      string `yaml:"-"`
}

type LogConfig struct {
	File string `yaml:"file"`
}

type RollupConfig struct {
	Schedule            string `yaml:"schedule" validate:"required"`
	ResubscribeSchedule string `yaml:"resubscribe_schedule"`
	RunAtStart          bool   `yaml:"run_at_start"`
}

type PresenceConfig struct {
	Source       string   `yaml:"source" validate:"oneof=slack kafka none"`
	SlackToken   string   `yaml:"slack_token" validate:"required_if=Source slack"`
	KafkaBrokers []string `yaml:"kafka_brokers" validate:"required_if=Source kafka,dive,hostname_port"`
	KafkaTopic   string   `yaml:"kafka_topic" validate:"required_if=Source kafka"`
	KafkaGroupID string   `yaml:"kafka_group_id" validate:"required_if=Source kafka"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    "8080",
			OpsPort: "9090",
			Env:     "development",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			Path:    "./data/activity.db",
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "slack_activity",
			SSLMode: "disable",
		},
		Rollup: RollupConfig{
			Schedule:            "@every 1h",
			ResubscribeSchedule: "0 0 * * *",
			RunAtStart:          true,
		},
		Presence: PresenceConfig{
			Source:       "slack",
			KafkaTopic:   "slack-presence",
			KafkaGroupID: "activity-monitor",
		},
	}
}

// Load reads .env, then the YAML file named by CONFIG_FILE, then the
// environment. Later sources win.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.Database.DSN = buildDSN(cfg.Database)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.OpsPort = getEnv("OPS_PORT", c.Server.OpsPort)
	c.Server.Env = getEnv("ENV", c.Server.Env)
	c.Server.WebRoot = getEnv("WEB_ROOT", c.Server.WebRoot)

	c.Database.Type = getEnv("DB_TYPE", c.Database.Type)
	c.Database.Path = getEnv("DATABASE_FILE", c.Database.Path)
	c.Database.Path = getEnv("SQLITE_PATH", c.Database.Path)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.Rollup.Schedule = getEnv("ROLLUP_SCHEDULE", c.Rollup.Schedule)
	c.Rollup.ResubscribeSchedule = getEnv("RESUBSCRIBE_SCHEDULE", c.Rollup.ResubscribeSchedule)
	c.Rollup.RunAtStart = getEnvBool("ROLLUP_AT_START", c.Rollup.RunAtStart)

	c.Presence.Source = getEnv("PRESENCE_SOURCE", c.Presence.Source)
	c.Presence.SlackToken = getEnv("SLACK_API_TOKEN", c.Presence.SlackToken)
	c.Presence.KafkaBrokers = getEnvList("KAFKA_BROKERS", c.Presence.KafkaBrokers)
	c.Presence.KafkaTopic = getEnv("KAFKA_TOPIC", c.Presence.KafkaTopic)
	c.Presence.KafkaGroupID = getEnv("KAFKA_GROUP_ID", c.Presence.KafkaGroupID)
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LogFields describes the configuration for the startup log. Secrets are
// reported as set or unset only.
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("env", c.Server.Env),
		zap.String("api_addr", c.Server.Host+":"+c.Server.Port),
		zap.String("ops_port", c.Server.OpsPort),
		zap.String("db_type", c.Database.Type),
		zap.String("sqlite_path", c.Database.Path),
		zap.String("web_root", c.Server.WebRoot),
		zap.String("log_file", c.Log.File),
		zap.String("rollup_schedule", c.Rollup.Schedule),
		zap.String("resubscribe_schedule", c.Rollup.ResubscribeSchedule),
		zap.String("presence_source", c.Presence.Source),
		zap.Bool("slack_token_set", c.Presence.SlackToken != ""),
		zap.Strings("kafka_brokers", c.Presence.KafkaBrokers),
		zap.String("kafka_topic", c.Presence.KafkaTopic),
	}
}

func buildDSN(db DatabaseConfig) string {
	if db.Type == "postgres" {
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			db.Host, db.Port, db.User, db.Password, db.Name, db.SSLMode,
		)
	}

	// Busy timeout and WAL let presence inserts proceed during a roll-up.
	return db.Path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
