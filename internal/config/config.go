package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/cortexd/config.yml"
)

type SocketConfig struct {
	Path             string `yaml:"path"`
	MaxPerSecond     int    `yaml:"max_per_second"`
	MaxMessageBytes  int    `yaml:"max_message_bytes"`
	TimeoutMS        int    `yaml:"timeout_ms"`
	Backlog          int    `yaml:"backlog"`
}

type ThresholdsConfig struct {
	DiskWarn   float64 `yaml:"disk_warn"`
	DiskCrit   float64 `yaml:"disk_crit"`
	MemWarn    float64 `yaml:"mem_warn"`
	MemCrit    float64 `yaml:"mem_crit"`
}

type MonitorConfig struct {
	CheckInterval time.Duration    `yaml:"check_interval"`
	AptInterval   int              `yaml:"apt_interval_cycles"`
	AptEnabled    bool             `yaml:"apt_enabled"`
	CVEEnabled    bool             `yaml:"cve_enabled"`
	Thresholds    ThresholdsConfig `yaml:"thresholds"`
}

type AlertsConfig struct {
	DedupWindow time.Duration `yaml:"dedup_window"`
	MaxAge      time.Duration `yaml:"max_age"`
}

type LLMConfig struct {
	Enabled    bool    `yaml:"enabled"`
	ModelPath  string  `yaml:"model_path"`
	MaxTokens  int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type PathsConfig struct {
	DBPath string `yaml:"db_path"`
}

type ToolsConfig struct {
	AptGet              string `yaml:"apt_get"`
	UbuntuSecurityStatus string `yaml:"ubuntu_security_status"`
	Debsecan            string `yaml:"debsecan"`
}

// WebhookConfig names one outbound HTTP endpoint the notifier posts
// raised alerts to.
type WebhookConfig struct {
	Name          string   `yaml:"name"`
	URL           string   `yaml:"url"`
	MinSeverity   string   `yaml:"min_severity"`
}

type Config struct {
	Socket     SocketConfig    `yaml:"socket"`
	Monitor    MonitorConfig   `yaml:"monitor"`
	Alerts     AlertsConfig    `yaml:"alerts"`
	LLM        LLMConfig       `yaml:"llm"`
	Logging    LoggingConfig   `yaml:"logging"`
	Paths      PathsConfig     `yaml:"paths"`
	Tools      ToolsConfig     `yaml:"tools"`
	Webhooks   []WebhookConfig `yaml:"webhooks"`
}

func defaultConfig() Config {
	return Config{
		Socket: SocketConfig{
			Path:            "/run/cortex/cortexd.sock",
			MaxPerSecond:    20,
			MaxMessageBytes: 4 * 1024 * 1024,
			TimeoutMS:       5000,
			Backlog:         64,
		},
		Monitor: MonitorConfig{
			CheckInterval: 300 * time.Second,
			AptInterval:   5,
			AptEnabled:    true,
			CVEEnabled:    true,
			Thresholds: ThresholdsConfig{
				DiskWarn: 0.80,
				DiskCrit: 0.90,
				MemWarn:  0.80,
				MemCrit:  0.90,
			},
		},
		Alerts: AlertsConfig{
			DedupWindow: 5 * time.Minute,
			MaxAge:      168 * time.Hour,
		},
		LLM: LLMConfig{
			Enabled:     false,
			ModelPath:   "",
			MaxTokens:   150,
			Temperature: 0.3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Paths: PathsConfig{
			DBPath: "/var/lib/cortex/alerts.db",
		},
		Tools: ToolsConfig{
			AptGet:               "apt-get",
			UbuntuSecurityStatus: "ubuntu-security-status",
			Debsecan:             "debsecan",
		},
	}
}

// Load reads path if it exists, applying it over the defaults, then layers
// environment overrides on top, then validates. An empty path falls back
// to DefaultConfigPath; a missing file at that path is not an error (the
// daemon starts on defaults).
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultConfig()

	if fileExists(path) {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("CORTEXD_SOCKET_PATH"); ok && v != "" {
		cfg.Socket.Path = v
	}
	if v, ok := os.LookupEnv("CORTEXD_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("CORTEXD_DB_PATH"); ok && v != "" {
		cfg.Paths.DBPath = v
	}
	if v, ok := os.LookupEnv("CORTEXD_LLM_MODEL_PATH"); ok && v != "" {
		cfg.LLM.ModelPath = v
		cfg.LLM.Enabled = true
	}
	if v, ok := os.LookupEnv("CORTEXD_MAX_PER_SECOND"); ok && v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Socket.MaxPerSecond = n
		}
	}
}

func validate(cfg Config) error {
	if cfg.Socket.Path == "" {
		return errors.New("socket.path must be set")
	}
	if cfg.Socket.MaxPerSecond <= 0 {
		return errors.New("socket.max_per_second must be positive")
	}
	if cfg.Paths.DBPath == "" {
		return errors.New("paths.db_path must be set")
	}
	if cfg.Monitor.Thresholds.DiskCrit < cfg.Monitor.Thresholds.DiskWarn {
		return errors.New("monitor.thresholds.disk_crit must be >= disk_warn")
	}
	if cfg.Monitor.Thresholds.MemCrit < cfg.Monitor.Thresholds.MemWarn {
		return errors.New("monitor.thresholds.mem_crit must be >= mem_warn")
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func parseInt(v string) (int, error) {
	var n int
	_, err := fmt.Sscanf(v, "%d", &n)
	return n, err
}
