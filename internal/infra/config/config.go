package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"sous-chef/internal/domain"
)

// configKeyEnv names the environment variable holding the passphrase used
// to decrypt "enc:" secret values.
const configKeyEnv = "SOUSCHEF_CONFIG_KEY"

// Config is the top-level application configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Provider ProviderConfig `yaml:"provider"`
	Store    StoreConfig    `yaml:"store"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Digest   DigestConfig   `yaml:"digest"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// EngineConfig holds orchestration loop settings.
type EngineConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	MaxRounds    int    `yaml:"max_rounds"`    // 0 = default (5)
	HistoryLimit int    `yaml:"history_limit"` // messages loaded per turn
	TokenBudget  int    `yaml:"token_budget"`  // prompt token budget, 0 = default
}

// ProviderConfig holds settings for the model backend. An empty BaseURL
// and APIKey means no backend is configured and the engine runs in
// fallback mode.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// Configured reports whether a model backend is set up at all.
func (p ProviderConfig) Configured() bool {
	return p.BaseURL != "" || p.APIKey != ""
}

// PoolConfig holds HTTP connection pool settings for the provider client.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// BreakerConfig holds circuit breaker settings for the provider.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// StoreConfig holds SQLite storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig holds HTTP/WebSocket gateway settings.
type GatewayConfig struct {
	Addr           string            `yaml:"addr"`
	AuthTokens     []AuthTokenConfig `yaml:"auth_tokens"`
	RequestsPerMin int               `yaml:"requests_per_min"` // 0 = no limit
	BurstSize      int               `yaml:"burst_size"`
}

// AuthTokenConfig is one static bearer token the gateway accepts.
type AuthTokenConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"` // may be "enc:..." encrypted
}

// DigestConfig holds expiry digest scheduler settings.
type DigestConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Schedule   string `yaml:"schedule"`    // cron expression
	WithinDays int    `yaml:"within_days"` // expiry horizon
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Defaults returns a config populated with sensible defaults.
func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			SystemPrompt: defaultSystemPrompt,
			HistoryLimit: 40,
		},
		Provider: ProviderConfig{
			Name:  "openai",
			Model: "gpt-4o-mini",
		},
		Store:   StoreConfig{Path: "sous-chef.db"},
		Gateway: GatewayConfig{Addr: "127.0.0.1:8435"},
		Digest: DigestConfig{
			Schedule:   "0 8 * * *",
			WithinDays: 3,
		},
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Exporter: "noop"},
	}
}

const defaultSystemPrompt = "You are sous-chef, a kitchen assistant. " +
	"You help with recipes, pantry inventory, meal planning, shopping lists " +
	"and nutrition. Use the available tools to look up real data before " +
	"answering; do not invent inventory contents or recipes."

// Load reads the config file at path, applies environment overrides and
// decrypts any "enc:" secrets. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			if err := validate(cfg); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrConfigLoad, path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfigLoad, path, err)
	}

	applyEnvOverrides(cfg)

	if passphrase := os.Getenv(configKeyEnv); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}
	return cfg, nil
}

// applyEnvOverrides lets a few environment variables win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SOUSCHEF_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("SOUSCHEF_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("SOUSCHEF_PROVIDER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("SOUSCHEF_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SOUSCHEF_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("SOUSCHEF_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SOUSCHEF_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SOUSCHEF_ENGINE_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxRounds = n
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Engine.MaxRounds < 0 {
		return fmt.Errorf("engine.max_rounds must be >= 0")
	}
	if cfg.Engine.HistoryLimit <= 0 {
		cfg.Engine.HistoryLimit = 40
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if cfg.Digest.Enabled && cfg.Digest.Schedule == "" {
		return fmt.Errorf("digest.schedule is required when digest is enabled")
	}
	return nil
}

// decryptSecrets replaces "enc:" values with their decrypted plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	if strings.HasPrefix(cfg.Provider.APIKey, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.Provider.APIKey, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("provider api_key: %w", err)
		}
		cfg.Provider.APIKey = decrypted
	}
	for i := range cfg.Gateway.AuthTokens {
		tok := cfg.Gateway.AuthTokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.AuthTokens[i].Name, err)
			}
			cfg.Gateway.AuthTokens[i].Token = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts plaintext with a passphrase-derived key for storage
// as an "enc:" config value. Format: hex(salt) + ":" + hex(nonce+ciphertext).
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue reverses EncryptValue. All failures, including a wrong
// passphrase, wrap domain.ErrDecryption.
func DecryptValue(encrypted, passphrase string) (string, error) {
	plaintext, err := decryptValue(encrypted, passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return plaintext, nil
}

func decryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}
