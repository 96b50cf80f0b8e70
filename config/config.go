// Package config loads TutorialPipe settings from an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

// Backend names accepted by LLM_BACKEND.
const (
	BackendOllama  = "ollama"
	BackendWatsonx = "watsonx"
	BackendOpenAI  = "openai"
	BackendGemini  = "gemini"
	BackendMock    = "mock"
)

// SupportedWatsonxModels lists the watsonx.ai model ids the chat endpoint
// is known to serve.
var SupportedWatsonxModels = []string{
	"ibm/granite-13b-instruct-v2",
	"ibm/granite-3-8b-instruct",
	"ibm/granite-3-3-8b-instruct",
	"ibm/granite-3-2-8b-instruct",
	"ibm/granite-3-2b-instruct",
	"meta-llama/llama-3-2-3b-instruct",
	"meta-llama/llama-3-2-1b-instruct",
	"meta-llama/llama-4-scout-17b-16e-instruct",
	"mistralai/mistral-large",
}

type Config struct {
	UseMocks bool          `mapstructure:"use_mocks"`
	LLM      LLMConfig     `mapstructure:"llm"`
	Ollama   OllamaConfig  `mapstructure:"ollama"`
	Watsonx  WatsonxConfig `mapstructure:"watsonx"`
	OpenAI   OpenAIConfig  `mapstructure:"openai"`
	Gemini   GeminiConfig  `mapstructure:"gemini"`
	Vision   VisionConfig  `mapstructure:"vision"`
	Docling  DoclingConfig `mapstructure:"docling"`
	Fetch    FetchConfig   `mapstructure:"fetch"`
	Chunk    ChunkConfig   `mapstructure:"chunk"`
	Refine   RefineConfig  `mapstructure:"refine"`
	Prompts  PromptsConfig `mapstructure:"prompts"`
	Server   ServerConfig  `mapstructure:"server"`
	Log      LogConfig     `mapstructure:"log"`
	Events   EventsConfig  `mapstructure:"events"`
}

type LLMConfig struct {
	Backend        string        `mapstructure:"backend"`
	Model          string        `mapstructure:"model"`
	MaxQPS         float64       `mapstructure:"max_qps"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type OllamaConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	ModelID  string `mapstructure:"model_id"`
	AutoPull bool   `mapstructure:"auto_pull"`
}

type WatsonxConfig struct {
	APIKey    string `mapstructure:"api_key"`
	ProjectID string `mapstructure:"project_id"`
	APIURL    string `mapstructure:"api_url"`
	ModelID   string `mapstructure:"model_id"`
	IAMURL    string `mapstructure:"iam_url"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type VisionConfig struct {
	Model string `mapstructure:"model"`
}

type DoclingConfig struct {
	URL       string `mapstructure:"url"`
	OutputDir string `mapstructure:"output_dir"`
}

type FetchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type ChunkConfig struct {
	MaxWords int `mapstructure:"max_words"`
}

type RefineConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type PromptsConfig struct {
	File string `mapstructure:"file"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
	// AllowLocalSources lets API callers name files on the server's disk.
	AllowLocalSources bool `mapstructure:"allow_local_sources"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Debug  bool   `mapstructure:"debug"`
}

type EventsConfig struct {
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// envAliases binds keys to environment names that do not follow the
// section_field convention.
var envAliases = map[string][]string{
	"llm.model":   {"LLM_MODEL", "MODEL_NAME"},
	"server.host": {"SERVER_HOST", "HOST"},
	"server.port": {"SERVER_PORT", "PORT"},
	"log.debug":   {"DEBUG"},
}

// Load reads configuration. path may be empty, in which case only defaults,
// .env and the environment are consulted.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading config file %s: %w", core.ErrConfig, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %w", core.ErrConfig, err)
	}
	cfg.applyModelPrefix()
	if cfg.Log.Debug {
		cfg.Log.Level = "debug"
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("use_mocks", false)

	v.SetDefault("llm.backend", BackendOllama)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_qps", 0)
	v.SetDefault("llm.max_concurrency", 4)
	v.SetDefault("llm.timeout", 120*time.Second)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model_id", "granite3.1-dense:8b")
	v.SetDefault("ollama.auto_pull", false)

	v.SetDefault("watsonx.api_key", "")
	v.SetDefault("watsonx.project_id", "")
	v.SetDefault("watsonx.api_url", "")
	v.SetDefault("watsonx.model_id", "ibm/granite-3-8b-instruct")
	v.SetDefault("watsonx.iam_url", "https://iam.cloud.ibm.com/identity/token")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")

	v.SetDefault("vision.model", "")

	v.SetDefault("docling.url", "")
	v.SetDefault("docling.output_dir", "")

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_attempts", 3)

	v.SetDefault("chunk.max_words", 400)
	v.SetDefault("refine.enabled", true)
	v.SetDefault("prompts.file", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.allow_local_sources", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.debug", false)

	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.kafka_topic", "tutorialpipe.runs")
}

// applyModelPrefix honours the "backend:model" form, e.g.
// MODEL_NAME=ollama:granite3.1-dense:8b.
func (c *Config) applyModelPrefix() {
	prefix, model, ok := strings.Cut(c.LLM.Model, ":")
	if !ok {
		return
	}
	switch prefix {
	case BackendOllama, BackendWatsonx, BackendOpenAI, BackendGemini:
		c.LLM.Backend = prefix
		c.LLM.Model = model
	}
}

// Backend returns the effective model backend.
func (c *Config) Backend() string {
	if c.UseMocks {
		return BackendMock
	}
	return strings.ToLower(c.LLM.Backend)
}

// ModelID returns the chat model for the effective backend.
func (c *Config) ModelID() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	switch c.Backend() {
	case BackendOllama:
		return c.Ollama.ModelID
	case BackendWatsonx:
		return c.Watsonx.ModelID
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendGemini:
		return c.Gemini.Model
	}
	return "mock"
}

// VisionModelID returns the model used for image captions.
func (c *Config) VisionModelID() string {
	if c.Vision.Model != "" {
		return c.Vision.Model
	}
	return c.ModelID()
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks that the selected backend is usable. It runs once at
// startup, before any pipeline run.
func (c *Config) Validate() error {
	if c.LLM.MaxQPS < 0 {
		return fmt.Errorf("%w: LLM_MAX_QPS must be >= 0, got %v", core.ErrConfig, c.LLM.MaxQPS)
	}
	if c.LLM.MaxConcurrency < 1 {
		return fmt.Errorf("%w: LLM_MAX_CONCURRENCY must be >= 1, got %d", core.ErrConfig, c.LLM.MaxConcurrency)
	}
	if c.LLM.Timeout <= 0 || c.Fetch.Timeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", core.ErrConfig)
	}

	var missing []string
	switch c.Backend() {
	case BackendMock:
		return nil
	case BackendOllama:
		if c.Ollama.BaseURL == "" {
			missing = append(missing, "OLLAMA_BASE_URL")
		}
	case BackendWatsonx:
		if c.Watsonx.APIKey == "" {
			missing = append(missing, "WATSONX_API_KEY")
		}
		if c.Watsonx.ProjectID == "" {
			missing = append(missing, "WATSONX_PROJECT_ID")
		}
		if c.Watsonx.APIURL == "" {
			missing = append(missing, "WATSONX_API_URL")
		}
		if model := c.ModelID(); !slices.Contains(SupportedWatsonxModels, model) {
			return fmt.Errorf("%w: unsupported watsonx model %q (supported: %s)",
				core.ErrConfig, model, strings.Join(SupportedWatsonxModels, ", "))
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("%w: unknown LLM_BACKEND %q", core.ErrConfig, c.LLM.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: backend %s requires %s", core.ErrConfig, c.Backend(), strings.Join(missing, ", "))
	}
	return nil
}
