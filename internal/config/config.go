package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/autoblog/internal/frontmatter"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	LLM      LLM      `yaml:"llm"`
	Article  Article  `yaml:"article"`
	Cover    Cover    `yaml:"cover"`
	Publish  Publish  `yaml:"publish"`
	Topics   Topics   `yaml:"topics"`
	Schedule Schedule `yaml:"schedule"`
	Server   Server   `yaml:"server"`
	Output   Output   `yaml:"output"`
	Logging  Logging  `yaml:"logging"`
}

type LLM struct {
	Provider       string        `yaml:"provider" validate:"oneof=ollama openai deepseek anthropic claude gemini google"`
	Model          string        `yaml:"model"`
	OllamaURL      string        `yaml:"ollama_url"`
	OpenAIModel    string        `yaml:"openai_model"`
	AnthropicModel string        `yaml:"anthropic_model"`
	GeminiModel    string        `yaml:"gemini_model"`
	BaseURL        string        `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	MaxTokens      int           `yaml:"max_tokens" validate:"gte=0"`
	Temperature    float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Article controls prompts and the metadata fallback policy.
type Article struct {
	Policy       string   `yaml:"policy"`
	DefaultTags  []string `yaml:"default_tags"`
	SystemPrompt string   `yaml:"system_prompt"`
	DefaultEmoji string   `yaml:"default_emoji"`
	Words        int      `yaml:"words" validate:"gte=0"`
}

type Cover struct {
	Width     int    `yaml:"width" validate:"gte=200"`
	Height    int    `yaml:"height" validate:"gte=100"`
	// EmojiFont is required for the emoji line to appear; the Go fonts lack
	// emoji glyphs.
	EmojiFont string `yaml:"emoji_font"`
}

// Publish selects where finished rounds are committed.
type Publish struct {
	Target         string `yaml:"target" validate:"oneof=github local"`
	Owner          string `yaml:"owner" validate:"required_if=Target github"`
	Repo           string `yaml:"repo" validate:"required_if=Target github"`
	Branch         string `yaml:"branch"`
	TokenEnv       string `yaml:"token_env"`
	BaseURL        string `yaml:"base_url" validate:"omitempty,url"`
	PostsDir       string `yaml:"posts_dir"`
	ImagesDir      string `yaml:"images_dir"`
	CoverURLPrefix string `yaml:"cover_url_prefix"`
	LocalDir       string `yaml:"local_dir"`
	AuthorName     string `yaml:"author_name"`
	AuthorEmail    string `yaml:"author_email" validate:"omitempty,email"`
}

type Topics struct {
	Feeds    []Feed        `yaml:"feeds" validate:"dive"`
	NewsAPI  NewsAPIConfig `yaml:"newsapi"`
	DaysBack int           `yaml:"days_back" validate:"gte=0"`
}

type Feed struct {
	URL  string `yaml:"url" validate:"url"`
	Name string `yaml:"name"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
}

// Schedule drives automatic batches while serving.
type Schedule struct {
	Enabled  bool          `yaml:"enabled"`
	Spec     string        `yaml:"spec" validate:"required_if=Enabled true"`
	Count    int           `yaml:"count" validate:"gte=0,lte=50"`
	Interval time.Duration `yaml:"interval"`
}

type Server struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port" validate:"gte=0,lte=65535"`
	StaticDir string `yaml:"static_dir"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// ConfigDir returns the XDG config directory for autoblog.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "autoblog")
}

// DataDir returns the XDG data directory for autoblog.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "autoblog")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/autoblog/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'autoblog init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in defaults without reading any file.
func Default() *Config {
	return &Config{
		LLM: LLM{
			Provider:       "ollama",
			Model:          "qwen2.5:7b",
			OllamaURL:      "http://localhost:11434",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-sonnet-4-20250514",
			GeminiModel:    "gemini-2.5-flash",
			APIKeyEnv:      "OPENAI_API_KEY",
			MaxTokens:      2048,
			Temperature:    0.7,
			Timeout:        120 * time.Second,
		},
		Article: Article{
			Policy:       "v2",
			DefaultTags:  []string{"blog"},
			DefaultEmoji: "✨📝",
			Words:        800,
		},
		Cover: Cover{Width: 1200, Height: 630},
		Publish: Publish{
			Target:         "local",
			Branch:         "main",
			TokenEnv:       "GITHUB_TOKEN",
			PostsDir:       "content/posts",
			ImagesDir:      "static/images",
			CoverURLPrefix: "/images",
			AuthorName:     "autoblog",
			AuthorEmail:    "autoblog@users.noreply.github.com",
		},
		Topics: Topics{
			NewsAPI: NewsAPIConfig{
				APIKeyEnv: "NEWSAPI_KEY",
				Query:     "technology",
			},
			DaysBack: 2,
		},
		Schedule: Schedule{Spec: "0 9 * * *", Count: 1, Interval: 10 * time.Second},
		Server:   Server{Host: "127.0.0.1", Port: 8000},
		Logging:  Logging{Level: "info", Format: "console"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints, the fallback policy version and the
// schedule expression.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := frontmatter.LookupPolicy(c.Article.Policy); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Spec); err != nil {
			return fmt.Errorf("invalid config: schedule.spec: %w", err)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// LocalPublishDir is where the local publish target writes files.
func (c *Config) LocalPublishDir() string {
	if c.Publish.LocalDir != "" {
		return c.Publish.LocalDir
	}
	return filepath.Join(c.GetDataDir(), "site")
}

// ListenAddr joins the server host and port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
