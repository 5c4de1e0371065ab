package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cuemby/cadence/pkg/retry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Config is the full runtime configuration of a cadence process
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Retry     RetryConfig     `yaml:"retry"`
	AutoReply AutoReplyConfig `yaml:"autoreply"`
	Notify    NotifyConfig    `yaml:"notify"`
	GenAI     GenAIConfig     `yaml:"genai"`
	Media     MediaConfig     `yaml:"media"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Probe     ProbeConfig     `yaml:"probe"`
}

// LogConfig configures pkg/log
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// StoreConfig selects and locates the ledger
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	DataDir string `yaml:"data_dir"`
	Path    string `yaml:"path"` // SQLite file, defaults to <data_dir>/cadence.sqlite
	// EncryptionKey seals account access tokens at rest when set
	EncryptionKey string `yaml:"encryption_key"`
}

// SQLitePath returns the SQLite database file path
func (s StoreConfig) SQLitePath() string {
	if s.Path != "" {
		return s.Path
	}
	return filepath.Join(s.DataDir, "cadence.sqlite")
}

// ServerConfig holds listen addresses; empty disables the listener
type ServerConfig struct {
	HTTPAddr          string   `yaml:"http_addr"`
	GRPCAddr          string   `yaml:"grpc_addr"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	RequestsPerSecond float64  `yaml:"requests_per_second"` // Per client, 0 disables
	Burst             int      `yaml:"burst"`
	AllowedIPs        []string `yaml:"allowed_ips"`
	DeniedIPs         []string `yaml:"denied_ips"`
}

// ExecutorConfig configures the scheduled publication executor
type ExecutorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Platforms      []string      `yaml:"platforms"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	MediaTimeout   time.Duration `yaml:"media_timeout"`
	CarouselMin    int           `yaml:"carousel_min"`
	CarouselMax    int           `yaml:"carousel_max"`
}

// RetryRule is one configurable row of the retry table
type RetryRule struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Backoff    string        `yaml:"backoff"`
}

// RetryConfig holds the retry table keyed by failure class
type RetryConfig struct {
	ResolveTransient RetryRule `yaml:"resolve_transient"`
	Transient        RetryRule `yaml:"transient"`
	Media            RetryRule `yaml:"media"`
}

// Rules converts the table into retry policy rules
func (r RetryConfig) Rules() map[retry.Class]retry.Rule {
	return map[retry.Class]retry.Rule{
		retry.ClassResolveTransient: {
			MaxRetries: r.ResolveTransient.MaxRetries,
			BaseDelay:  r.ResolveTransient.BaseDelay,
			Backoff:    retry.Backoff(r.ResolveTransient.Backoff),
		},
		retry.ClassTransient: {
			MaxRetries: r.Transient.MaxRetries,
			BaseDelay:  r.Transient.BaseDelay,
			Backoff:    retry.Backoff(r.Transient.Backoff),
		},
		retry.ClassMedia: {
			MaxRetries: r.Media.MaxRetries,
			BaseDelay:  r.Media.BaseDelay,
			Backoff:    retry.Backoff(r.Media.Backoff),
			ClearMedia: true,
		},
	}
}

// AutoReplyConfig configures the engagement auto-reply engine
type AutoReplyConfig struct {
	Interval          time.Duration `yaml:"interval"`
	MessageInterval   time.Duration `yaml:"message_interval"`
	MaxRepliesPerRule int           `yaml:"max_replies_per_rule"`
	FallbackWindow    time.Duration `yaml:"fallback_window"`
	RetryLookback     time.Duration `yaml:"retry_lookback"`
	GenerateTimeout   time.Duration `yaml:"generate_timeout"`
	PlatformTimeout   time.Duration `yaml:"platform_timeout"`
	MaxMessageLength  int           `yaml:"max_message_length"`
}

// NotifyConfig configures the notification delivery subsystem
type NotifyConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	FlushInterval     time.Duration `yaml:"flush_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
	QueueCapacity     int           `yaml:"queue_capacity"`
	BufferCapacity    int           `yaml:"buffer_capacity"`
	DedupWindow       time.Duration `yaml:"dedup_window"`
	PreAlertLead      time.Duration `yaml:"pre_alert_lead"`
	ArmInterval       time.Duration `yaml:"arm_interval"`
	ArmHorizon        time.Duration `yaml:"arm_horizon"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
	Retention         time.Duration `yaml:"retention"`
}

// GenAIConfig configures the OpenAI-compatible content and image backend
type GenAIConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	ImageModel        string        `yaml:"image_model"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

// MediaConfig configures where uploaded and generated media live
type MediaConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"` // Public URL prefix served at /media/
}

// GatewayConfig configures the platform gateway client
type GatewayConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProbeConfig configures dependency probes. Zero Interval disables them.
type ProbeConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	GatewayPath string        `yaml:"gateway_path"` // Health route on the gateway
}

// Default returns a configuration with every interval, ceiling and capacity set
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver:  DriverBolt,
			DataDir: "./cadence-data",
		},
		Server: ServerConfig{
			HTTPAddr:          "127.0.0.1:8080",
			GRPCAddr:          "127.0.0.1:9090",
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Executor: ExecutorConfig{
			Interval:       30 * time.Second,
			Platforms:      []string{"instagram", "facebook"},
			PublishTimeout: 60 * time.Second,
			MediaTimeout:   90 * time.Second,
			CarouselMin:    3,
			CarouselMax:    5,
		},
		Retry: RetryConfig{
			ResolveTransient: RetryRule{MaxRetries: 5, BaseDelay: 10 * time.Minute, Backoff: string(retry.BackoffLinear)},
			Transient:        RetryRule{MaxRetries: 3, BaseDelay: 15 * time.Minute, Backoff: string(retry.BackoffLinear)},
			Media:            RetryRule{MaxRetries: 2, BaseDelay: 5 * time.Minute, Backoff: string(retry.BackoffFixed)},
		},
		AutoReply: AutoReplyConfig{
			Interval:          60 * time.Second,
			MessageInterval:   60 * time.Second,
			MaxRepliesPerRule: 3,
			FallbackWindow:    10 * time.Minute,
			RetryLookback:     time.Hour,
			GenerateTimeout:   30 * time.Second,
			PlatformTimeout:   30 * time.Second,
			MaxMessageLength:  200,
		},
		Notify: NotifyConfig{
			SweepInterval:     60 * time.Second,
			FlushInterval:     5 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			StaleAfter:        5 * time.Minute,
			SendTimeout:       5 * time.Second,
			QueueCapacity:     50,
			BufferCapacity:    100,
			DedupWindow:       15 * time.Minute,
			PreAlertLead:      10 * time.Minute,
			ArmInterval:       5 * time.Minute,
			ArmHorizon:        24 * time.Hour,
			RetentionInterval: 24 * time.Hour,
			Retention:         30 * 24 * time.Hour,
		},
		GenAI: GenAIConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			ImageModel:        "dall-e-3",
			RequestsPerMinute: 30,
			Timeout:           60 * time.Second,
		},
		Media: MediaConfig{
			Dir:     "./cadence-data/media",
			BaseURL: "http://127.0.0.1:8080/media",
		},
		Gateway: GatewayConfig{
			Timeout: 30 * time.Second,
		},
		Probe: ProbeConfig{
			Interval:    30 * time.Second,
			Timeout:     5 * time.Second,
			Retries:     3,
			GatewayPath: "/healthz",
		},
	}
}

// Load reads the YAML file at path (if any) over the defaults, then
// applies CADENCE_* environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides secrets, paths and addresses from the environment
func (c *Config) ApplyEnv() {
	setString(&c.Log.Level, "CADENCE_LOG_LEVEL")
	setBool(&c.Log.JSON, "CADENCE_LOG_JSON")
	setString(&c.Store.Driver, "CADENCE_STORE_DRIVER")
	setString(&c.Store.DataDir, "CADENCE_DATA_DIR")
	setString(&c.Store.Path, "CADENCE_STORE_PATH")
	setString(&c.Store.EncryptionKey, "CADENCE_ENCRYPTION_KEY")
	setString(&c.Server.HTTPAddr, "CADENCE_HTTP_ADDR")
	setString(&c.Server.GRPCAddr, "CADENCE_GRPC_ADDR")
	setString(&c.GenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.GenAI.APIKey, "CADENCE_GENAI_API_KEY")
	setString(&c.GenAI.BaseURL, "CADENCE_GENAI_BASE_URL")
	setString(&c.GenAI.Model, "CADENCE_GENAI_MODEL")
	setString(&c.GenAI.ImageModel, "CADENCE_GENAI_IMAGE_MODEL")
	setString(&c.Media.Dir, "CADENCE_MEDIA_DIR")
	setString(&c.Media.BaseURL, "CADENCE_MEDIA_BASE_URL")
	setString(&c.Gateway.URL, "CADENCE_GATEWAY_URL")
	setString(&c.Gateway.Token, "CADENCE_GATEWAY_TOKEN")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks that the configuration can run
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverBolt, DriverSQLite, c.Store.Driver)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}

	intervals := map[string]time.Duration{
		"executor.interval":          c.Executor.Interval,
		"autoreply.interval":         c.AutoReply.Interval,
		"autoreply.message_interval": c.AutoReply.MessageInterval,
		"notify.sweep_interval":      c.Notify.SweepInterval,
		"notify.flush_interval":      c.Notify.FlushInterval,
		"notify.heartbeat_interval":  c.Notify.HeartbeatInterval,
		"notify.arm_interval":        c.Notify.ArmInterval,
		"notify.retention_interval":  c.Notify.RetentionInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Executor.CarouselMin < 1 || c.Executor.CarouselMax < c.Executor.CarouselMin {
		return fmt.Errorf("executor carousel bounds invalid: min=%d max=%d", c.Executor.CarouselMin, c.Executor.CarouselMax)
	}
	if c.Notify.QueueCapacity < 1 || c.Notify.BufferCapacity < 1 {
		return fmt.Errorf("notify queue and buffer capacity must be positive")
	}
	if c.Server.RequestsPerSecond < 0 {
		return fmt.Errorf("server.requests_per_second must not be negative")
	}
	if c.Probe.Interval < 0 || c.Probe.Retries < 0 {
		return fmt.Errorf("probe interval and retries must not be negative")
	}
	if c.AutoReply.MaxRepliesPerRule < 1 {
		return fmt.Errorf("autoreply.max_replies_per_rule must be positive")
	}
	return nil
}
