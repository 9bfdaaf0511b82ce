// Package config provides centralized configuration for threadauto.
// Values come from a .env.local file, an optional YAML file and environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yangwenmai/threadauto/internal/model"
)

// EnvFile is loaded before anything else. Variables already set in the
// environment are not overwritten.
const EnvFile = ".env.local"

// Supported AI providers.
const (
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderClaude     = "claude"
	ProviderOllama     = "ollama"
)

// providerKeyEnv maps each provider to the variable holding its credential.
// Ollama runs locally and needs none.
var providerKeyEnv = map[string]string{
	ProviderGroq:       "GROQ_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderGemini:     "GEMINI_API_KEY",
	ProviderClaude:     "ANTHROPIC_API_KEY",
	ProviderOllama:     "",
}

// ThreadConfig holds layout limits for composed threads.
type ThreadConfig struct {
	// UnitLimit is the per-post character limit in runes.
	UnitLimit int `yaml:"unit_limit"`

	// ThreadThreshold is the fact count at which a multi-post thread is used.
	ThreadThreshold int `yaml:"thread_threshold"`

	// MaxFactReplies caps the number of fact replies. 0 means unlimited.
	MaxFactReplies int `yaml:"max_fact_replies"`

	// Marker ends a truncated unit.
	Marker string `yaml:"marker"`
}

// Config holds all run configuration values.
type Config struct {
	// DryRun renders the thread instead of posting it. Defaults to true.
	DryRun bool

	// FeedURL is a feed URL or a preset name such as "techcrunch".
	FeedURL string

	// Provider selects the LLM backend: groq, openrouter, openai, gemini, claude, ollama.
	Provider string

	// Model overrides the provider's default model.
	Model string

	GroqKey       string
	OpenRouterKey string
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	AnthropicKey  string
	OllamaURL     string

	// ThreadsToken is the Threads Graph API access token.
	ThreadsToken string

	// ThreadsUserID is the posting account. "me" resolves to the token owner.
	ThreadsUserID string

	// ThreadsBaseURL is the Threads Graph API root.
	ThreadsBaseURL string

	// StateDBPath is the path to the SQLite ledger.
	StateDBPath string

	// ArchiveDir is the root of the Markdown archive. Empty disables archiving.
	ArchiveDir string

	LogLevel string

	// HTTPTimeout bounds each outgoing HTTP request.
	HTTPTimeout time.Duration

	// MaxTextLength is the maximum number of article runes sent to the model.
	MaxTextLength int

	// RetryMaxAttempts is the total attempts per external call.
	RetryMaxAttempts int

	// RetryBackoff is the wait before the first retry.
	RetryBackoff time.Duration

	// ClaimTTL is how long a per-article claim blocks overlapping runs.
	ClaimTTL time.Duration

	Persona model.Persona
	Thread  ThreadConfig
}

// fileConfig is the YAML file layout. Pointer fields distinguish "unset" from zero.
type fileConfig struct {
	DryRun     *bool         `yaml:"dry_run"`
	Feed       string        `yaml:"feed"`
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	ArchiveDir string        `yaml:"archive_dir"`
	StateDB    string        `yaml:"state_db"`
	LogLevel   string        `yaml:"log_level"`
	Persona    model.Persona `yaml:"persona"`
	Thread     ThreadConfig  `yaml:"thread"`
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/threadauto/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "threadauto", "config.yaml")
}

// DefaultStatePath returns $XDG_DATA_HOME/threadauto/ledger.db.
func DefaultStatePath() string {
	return filepath.Join(xdg.DataHome, "threadauto", "ledger.db")
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DryRun:           true,
		FeedURL:          "techcrunch",
		Provider:         ProviderGroq,
		OpenAIBaseURL:    "https://api.openai.com/v1",
		OllamaURL:        "http://localhost:11434",
		ThreadsUserID:    "me",
		ThreadsBaseURL:   "https://graph.threads.net/v1.0",
		StateDBPath:      DefaultStatePath(),
		ArchiveDir:       "archive",
		LogLevel:         "info",
		HTTPTimeout:      30 * time.Second,
		MaxTextLength:    6000,
		RetryMaxAttempts: 3,
		RetryBackoff:     2 * time.Second,
		ClaimTTL:         15 * time.Minute,
		Persona:          model.DefaultPersona(),
		Thread: ThreadConfig{
			UnitLimit:       500,
			ThreadThreshold: 2,
			Marker:          "[…]",
		},
	}
}

// Load builds the configuration. path names a YAML file; when empty,
// THREADAUTO_CONFIG and then DefaultConfigPath are tried. An explicitly named
// file must exist; the default one may be absent.
func Load(path string) (Config, error) {
	loadEnvFile(EnvFile)

	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		if p := os.Getenv("THREADAUTO_CONFIG"); p != "" {
			path, explicit = p, true
		} else {
			path = DefaultConfigPath()
		}
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// loadEnvFile loads KEY=VALUE pairs from path. A missing file is not an error.
func loadEnvFile(path string) {
	_ = godotenv.Load(path)
}

func (c *Config) applyFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	if fc.DryRun != nil {
		c.DryRun = *fc.DryRun
	}
	setIf(&c.FeedURL, fc.Feed)
	setIf(&c.Provider, fc.Provider)
	setIf(&c.Model, fc.Model)
	setIf(&c.ArchiveDir, fc.ArchiveDir)
	setIf(&c.StateDBPath, fc.StateDB)
	setIf(&c.LogLevel, fc.LogLevel)

	c.Persona = fc.Persona.WithDefaults()

	if fc.Thread.UnitLimit > 0 {
		c.Thread.UnitLimit = fc.Thread.UnitLimit
	}
	if fc.Thread.ThreadThreshold > 0 {
		c.Thread.ThreadThreshold = fc.Thread.ThreadThreshold
	}
	if fc.Thread.MaxFactReplies > 0 {
		c.Thread.MaxFactReplies = fc.Thread.MaxFactReplies
	}
	setIf(&c.Thread.Marker, fc.Thread.Marker)
	return nil
}

func (c *Config) applyEnv() {
	c.DryRun = envBool("DRY_RUN", c.DryRun)
	c.FeedURL = envOr("FEED_URL", envOr("RSS_URL", c.FeedURL))
	c.Provider = strings.ToLower(envOr("AI_PROVIDER", c.Provider))
	c.Model = envOr("AI_MODEL", c.Model)

	c.GroqKey = os.Getenv("GROQ_API_KEY")
	c.OpenRouterKey = os.Getenv("OPENROUTER_API_KEY")
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAIBaseURL = envOr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.GeminiKey = os.Getenv("GEMINI_API_KEY")
	c.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	c.OllamaURL = envOr("OLLAMA_URL", c.OllamaURL)

	c.ThreadsToken = os.Getenv("THREADS_ACCESS_TOKEN")
	c.ThreadsUserID = envOr("THREADS_USER_ID", c.ThreadsUserID)
	c.ThreadsBaseURL = envOr("THREADS_API_URL", c.ThreadsBaseURL)

	c.StateDBPath = envOr("STATE_DB_PATH", c.StateDBPath)
	c.ArchiveDir = envOr("ARCHIVE_DIR", c.ArchiveDir)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.HTTPTimeout = envDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.MaxTextLength = envInt("MAX_TEXT_LENGTH", c.MaxTextLength)
	c.RetryMaxAttempts = envInt("RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts)
	c.RetryBackoff = envDuration("RETRY_BACKOFF", c.RetryBackoff)
	c.ClaimTTL = envDuration("CLAIM_TTL", c.ClaimTTL)
}

// ProviderKey returns the credential for the selected provider.
func (c Config) ProviderKey() string {
	switch c.Provider {
	case ProviderGroq:
		return c.GroqKey
	case ProviderOpenRouter:
		return c.OpenRouterKey
	case ProviderOpenAI:
		return c.OpenAIKey
	case ProviderGemini:
		return c.GeminiKey
	case ProviderClaude:
		return c.AnthropicKey
	default:
		return ""
	}
}

// Validate reports configuration that would make a run fail before any stage.
func (c Config) Validate() error {
	keyEnv, ok := providerKeyEnv[c.Provider]
	if !ok {
		return fmt.Errorf("unknown AI provider %q", c.Provider)
	}
	if keyEnv != "" && c.ProviderKey() == "" {
		return fmt.Errorf("provider %s: %s is not set", c.Provider, keyEnv)
	}
	if strings.TrimSpace(c.FeedURL) == "" {
		return errors.New("feed url is empty")
	}
	if c.StateDBPath == "" {
		return errors.New("state db path is empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("max text length must be positive, got %d", c.MaxTextLength)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.Persona.WrapWidth <= 0 {
		return fmt.Errorf("wrap width must be positive, got %d", c.Persona.WrapWidth)
	}
	if c.Thread.UnitLimit <= c.Persona.WrapWidth {
		return fmt.Errorf("unit limit %d must exceed wrap width %d", c.Thread.UnitLimit, c.Persona.WrapWidth)
	}
	return nil
}

// Live reports whether posts actually go out. Live mode without a Threads
// token degrades to a dry run.
func (c Config) Live() bool {
	return !c.DryRun && c.ThreadsToken != ""
}

// MissingToken reports a live run requested without a Threads token.
func (c Config) MissingToken() bool {
	return !c.DryRun && c.ThreadsToken == ""
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
