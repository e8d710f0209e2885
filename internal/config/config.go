package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"signaldesk/pkg/signaldesk"
)

const (
	defaultDBName      = "signaldesk.db"
	defaultHost        = "127.0.0.1"
	defaultPort        = 8000
	defaultLogLevel    = "info"
	defaultCacheTTL    = "2h"
	defaultHistorySize = 250
	defaultWarmupCron  = "0 */30 9-16 * * MON-FRI"
)

// configFileNames are probed in order when no explicit path is given.
var configFileNames = []string{"signaldesk.yaml", "signaldesk.yml", "signaldesk.toml", "signaldesk.json"}

type ServerConfig struct {
	Host string `json:"host" yaml:"host" toml:"host"`
	Port int    `json:"port" yaml:"port" toml:"port"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key" toml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	Model   string `json:"model" yaml:"model" toml:"model"`
}

type GeminiConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key" toml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	// Model is optional; when discovery lists it, it is tried first.
	Model string `json:"model" yaml:"model" toml:"model"`
}

type AnthropicConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key" toml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	Model   string `json:"model" yaml:"model" toml:"model"`
}

type AIConfig struct {
	Provider  string          `json:"provider" yaml:"provider" toml:"provider"`
	Timeout   string          `json:"timeout" yaml:"timeout" toml:"timeout"`
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai" toml:"openai"`
	Gemini    GeminiConfig    `json:"gemini" yaml:"gemini" toml:"gemini"`
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic" toml:"anthropic"`
}

type MarketConfig struct {
	HistorySize int    `json:"history_size" yaml:"history_size" toml:"history_size"`
	CacheTTL    string `json:"cache_ttl" yaml:"cache_ttl" toml:"cache_ttl"`
}

type WarmupConfig struct {
	Cron    string   `json:"cron" yaml:"cron" toml:"cron"`
	Symbols []string `json:"symbols" yaml:"symbols" toml:"symbols"`
}

// Config is the process configuration. Values are layered: defaults, then the
// config file, then environment variables.
type Config struct {
	Server   ServerConfig `json:"server" yaml:"server" toml:"server"`
	DataDir  string       `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	DBName   string       `json:"db_name" yaml:"db_name" toml:"db_name"`
	LogLevel string       `json:"log_level" yaml:"log_level" toml:"log_level"`
	AI       AIConfig     `json:"ai" yaml:"ai" toml:"ai"`
	Market   MarketConfig `json:"market" yaml:"market" toml:"market"`
	Warmup   WarmupConfig `json:"warmup" yaml:"warmup" toml:"warmup"`

	// Path is the file the config was read from, if any.
	Path string `json:"-" yaml:"-" toml:"-"`
}

func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   ServerConfig{Host: defaultHost, Port: defaultPort},
		DBName:   defaultDBName,
		LogLevel: defaultLogLevel,
		AI:       AIConfig{Provider: signaldesk.ProviderOpenAI},
		Market:   MarketConfig{HistorySize: defaultHistorySize, CacheTTL: defaultCacheTTL},
		Warmup:   WarmupConfig{Cron: defaultWarmupCron},
	}
}

// Load reads configuration from path. An empty path probes the working
// directory and the application config dir; a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = discoverConfigPath()
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
		cfg.Path = path
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func discoverConfigPath() string {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if dir, err := appConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}
	for _, dir := range dirs {
		for _, name := range configFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "SIGNALDESK_HOST")
	if v := strings.TrimSpace(os.Getenv("SIGNALDESK_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setString(&cfg.DataDir, "SIGNALDESK_DATA_DIR")
	setString(&cfg.DBName, "SIGNALDESK_DB_NAME")
	setString(&cfg.LogLevel, "SIGNALDESK_LOG_LEVEL")

	setString(&cfg.AI.Provider, "AI_PROVIDER")
	setString(&cfg.AI.Provider, "SIGNALDESK_AI_PROVIDER")
	setString(&cfg.AI.Timeout, "SIGNALDESK_AI_TIMEOUT")
	setString(&cfg.AI.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.AI.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.AI.OpenAI.Model, "SIGNALDESK_OPENAI_MODEL")
	setString(&cfg.AI.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.AI.Gemini.BaseURL, "GEMINI_BASE_URL")
	setString(&cfg.AI.Gemini.Model, "SIGNALDESK_GEMINI_MODEL")
	setString(&cfg.AI.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.AI.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")
	setString(&cfg.AI.Anthropic.Model, "SIGNALDESK_ANTHROPIC_MODEL")

	if v := strings.TrimSpace(os.Getenv("SIGNALDESK_HISTORY_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Market.HistorySize = n
		}
	}
	setString(&cfg.Market.CacheTTL, "SIGNALDESK_CACHE_TTL")
	setString(&cfg.Warmup.Cron, "SIGNALDESK_WARMUP_CRON")
	if v := strings.TrimSpace(os.Getenv("SIGNALDESK_WARMUP_SYMBOLS")); v != "" {
		cfg.Warmup.Symbols = splitSymbols(v)
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitSymbols(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects values the server cannot start with. Missing API keys are
// not rejected here; they surface as configuration errors per analysis.
func (c *Config) Validate() error {
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	switch c.AI.Provider {
	case signaldesk.ProviderOpenAI, signaldesk.ProviderGemini, signaldesk.ProviderAnthropic:
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Market.HistorySize < 0 {
		return errors.New("market.history_size must not be negative")
	}
	if _, err := parseDuration(c.Market.CacheTTL); err != nil {
		return fmt.Errorf("market.cache_ttl: %w", err)
	}
	if _, err := parseDuration(c.AI.Timeout); err != nil {
		return fmt.Errorf("ai.timeout: %w", err)
	}
	if strings.TrimSpace(c.DBName) == "" {
		c.DBName = defaultDBName
	}
	c.Warmup.Symbols = splitSymbols(strings.Join(c.Warmup.Symbols, ","))
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", v)
	}
	return d, nil
}

// CacheTTL is the market data freshness window; zero means the library default.
func (c Config) CacheTTL() time.Duration {
	d, _ := parseDuration(c.Market.CacheTTL)
	return d
}

// AITimeout is the per-request LLM timeout; zero means the library default.
func (c Config) AITimeout() time.Duration {
	d, _ := parseDuration(c.AI.Timeout)
	return d
}

// ProviderConfig returns the explicit provider settings passed into the core.
func (c Config) ProviderConfig() signaldesk.ProviderConfig {
	pc := signaldesk.ProviderConfig{Kind: c.AI.Provider, HTTPTimeout: c.AITimeout()}
	switch c.AI.Provider {
	case signaldesk.ProviderOpenAI:
		pc.APIKey, pc.BaseURL, pc.Model = c.AI.OpenAI.APIKey, c.AI.OpenAI.BaseURL, c.AI.OpenAI.Model
	case signaldesk.ProviderGemini:
		pc.APIKey, pc.BaseURL, pc.Model = c.AI.Gemini.APIKey, c.AI.Gemini.BaseURL, c.AI.Gemini.Model
	case signaldesk.ProviderAnthropic:
		pc.APIKey, pc.BaseURL, pc.Model = c.AI.Anthropic.APIKey, c.AI.Anthropic.BaseURL, c.AI.Anthropic.Model
	}
	return pc
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func userHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

func appConfigDir() (string, error) {
	if IsMacOS() {
		home, err := userHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "SignalDesk"), nil
	}
	if IsWindows() {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := userHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "SignalDesk"), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := userHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "signaldesk"), nil
	}
	return filepath.Join(configDir, "signaldesk"), nil
}

// GetDataDir returns the directory holding the database and logs, creating it.
func (c Config) GetDataDir() (string, error) {
	dir := strings.TrimSpace(c.DataDir)
	if dir == "" {
		defaultDir, err := appConfigDir()
		if err != nil {
			return "", err
		}
		dir = defaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetDBPath returns the SQLite path. SIGNALDESK_DB_PATH overrides the data dir layout.
func (c Config) GetDBPath() (string, error) {
	if envPath := os.Getenv("SIGNALDESK_DB_PATH"); envPath != "" {
		return envPath, nil
	}
	dataDir, err := c.GetDataDir()
	if err != nil {
		return "", err
	}
	name := c.DBName
	if name == "" {
		name = defaultDBName
	}
	return filepath.Join(dataDir, name), nil
}
