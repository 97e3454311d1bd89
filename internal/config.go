package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/JohnTocci/KnowledgeHub/internal/transcriber"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// EnvAPIKey is the environment variable holding the Anthropic credential.
const EnvAPIKey = "ANTHROPIC_API_KEY"

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Vault       VaultConfig       `yaml:"vault"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Auth        AuthConfig        `yaml:"auth"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Templates   TemplatesConfig   `yaml:"templates"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Summarizer.Validate(); err != nil {
		return err
	}
	if err := c.Transcriber.Validate(); err != nil {
		return err
	}
	return c.Pipeline.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// SummarizerConfig holds LLM summarization settings. The credential itself
// never lives in the config file: it comes from the ANTHROPIC_API_KEY
// environment variable or, if that is unset, from APIKeyFile.
type SummarizerConfig struct {
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	MaxInputChars int     `yaml:"max_input_chars"`
	Retries       int     `yaml:"retries"`
	SystemPrompt  string  `yaml:"system_prompt"`
	TaskPrompt    string  `yaml:"task_prompt"`
	APIKeyFile    string  `yaml:"api_key_file"`
}

// Validate validates the summarizer configuration.
func (c *SummarizerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxTokens, validation.Min(1)),
		validation.Field(&c.Retries, validation.Min(0), validation.Max(10)),
	)
}

// APIKey resolves the credential from the environment or the secret file.
// The value must never be logged or written into notes.
func (c *SummarizerConfig) APIKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		return key, nil
	}
	if c.APIKeyFile != "" {
		data, err := os.ReadFile(ExpandHome(c.APIKeyFile))
		if err != nil {
			return "", fmt.Errorf("config: read api key file: %w", err)
		}
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("config: %s not set and no api_key_file configured", EnvAPIKey)
}

// TranscriberConfig holds video download and transcription settings.
type TranscriberConfig struct {
	Model        string `yaml:"model"`
	BinaryPath   string `yaml:"binary_path"`
	ModelDir     string `yaml:"model_dir"`
	Language     string `yaml:"language"`
	YTDLPPath    string `yaml:"ytdlp_path"`
	AudioQuality string `yaml:"audio_quality"`
}

// Validate validates the transcriber configuration.
func (c *TranscriberConfig) Validate() error {
	if c.Model == "" {
		return nil
	}
	if _, err := transcriber.ParseModelSize(c.Model); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// TemplatesConfig holds note rendering settings.
type TemplatesConfig struct {
	DateFormat string `yaml:"date_format"`
	Filename   string `yaml:"filename"`
	Markdown   string `yaml:"markdown"`
}

// PipelineConfig holds pipeline tuning knobs.
type PipelineConfig struct {
	MinContentLength int           `yaml:"min_content_length"`
	StageTimeout     time.Duration `yaml:"stage_timeout"`
	Concurrency      int           `yaml:"concurrency"`
	FeedMaxItems     int           `yaml:"feed_max_items"`
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinContentLength, validation.Min(0)),
		validation.Field(&c.Concurrency, validation.Min(0), validation.Max(64)),
		validation.Field(&c.FeedMaxItems, validation.Min(0), validation.Max(100)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "~/KnowledgeHub",
		},
		SQLite: SQLiteConfig{
			Path: "~/KnowledgeHub/knowledgehub.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Summarizer: SummarizerConfig{
			Model:         "claude-sonnet-4-20250514",
			MaxTokens:     2000,
			Temperature:   0.2,
			MaxInputChars: 48000,
			Retries:       3,
		},
		Transcriber: TranscriberConfig{
			Model:        "base",
			BinaryPath:   "whisper",
			ModelDir:     "~/.cache/whisper",
			Language:     "auto",
			YTDLPPath:    "yt-dlp",
			AudioQuality: "192",
		},
		Templates: TemplatesConfig{
			DateFormat: "%Y-%m-%d %H:%M",
			Filename:   "{title}.md",
		},
		Pipeline: PipelineConfig{
			MinContentLength: 200,
			StageTimeout:     2 * time.Minute,
			Concurrency:      2,
			FeedMaxItems:     10,
		},
	}
}

// View returns a redacted snapshot of the configuration for the dashboard.
// Credentials never appear: the API key is not part of Config and the auth
// token is masked.
func (c *Config) View() map[string]any {
	token := ""
	if c.Auth.Token != "" {
		token = "********"
	}
	return map[string]any{
		"app": map[string]any{
			"log_level": c.App.LogLevel.String(),
			"http":      map[string]any{"port": c.App.HTTP.Port},
		},
		"vault":  map[string]any{"path": c.Vault.Path},
		"sqlite": map[string]any{"path": c.SQLite.Path},
		"auth":   map[string]any{"mode": c.Auth.Mode, "token": token},
		"summarizer": map[string]any{
			"model":           c.Summarizer.Model,
			"max_tokens":      c.Summarizer.MaxTokens,
			"temperature":     c.Summarizer.Temperature,
			"max_input_chars": c.Summarizer.MaxInputChars,
			"retries":         c.Summarizer.Retries,
		},
		"transcriber": map[string]any{
			"model":         c.Transcriber.Model,
			"binary_path":   c.Transcriber.BinaryPath,
			"model_dir":     c.Transcriber.ModelDir,
			"language":      c.Transcriber.Language,
			"ytdlp_path":    c.Transcriber.YTDLPPath,
			"audio_quality": c.Transcriber.AudioQuality,
		},
		"templates": map[string]any{
			"date_format": c.Templates.DateFormat,
			"filename":    c.Templates.Filename,
		},
		"pipeline": map[string]any{
			"min_content_length": c.Pipeline.MinContentLength,
			"stage_timeout":      c.Pipeline.StageTimeout.String(),
			"concurrency":        c.Pipeline.Concurrency,
			"feed_max_items":     c.Pipeline.FeedMaxItems,
		},
	}
}

// ExpandHome resolves a leading ~ to the current user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
