package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend() != BackendOllama {
		t.Errorf("Backend = %q, want ollama", cfg.Backend())
	}
	if cfg.ModelID() != "granite3.1-dense:8b" {
		t.Errorf("ModelID = %q", cfg.ModelID())
	}
	if cfg.LLM.MaxConcurrency != 4 || cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v %+v", cfg.LLM, cfg.Fetch)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.Server.AllowLocalSources {
		t.Error("AllowLocalSources should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LLM_BACKEND", "watsonx")
	t.Setenv("LLM_MAX_QPS", "2.5")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("WATSONX_API_KEY", "key")
	t.Setenv("WATSONX_PROJECT_ID", "proj")
	t.Setenv("WATSONX_API_URL", "https://us-south.ml.cloud.ibm.com")
	t.Setenv("PORT", "9090")
	t.Setenv("DEBUG", "true")
	t.Setenv("EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SERVER_ALLOW_LOCAL_SOURCES", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend() != BackendWatsonx || cfg.ModelID() != "ibm/granite-3-8b-instruct" {
		t.Errorf("backend/model = %s/%s", cfg.Backend(), cfg.ModelID())
	}
	if cfg.LLM.MaxQPS != 2.5 || cfg.LLM.Timeout != 45*time.Second {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if !cfg.Server.AllowLocalSources {
		t.Error("SERVER_ALLOW_LOCAL_SOURCES not applied")
	}
	if len(cfg.Events.KafkaBrokers) != 2 {
		t.Errorf("brokers = %v", cfg.Events.KafkaBrokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestModelNamePrefix(t *testing.T) {
	t.Setenv("MODEL_NAME", "ollama:granite3.1-dense:8b")
	t.Setenv("LLM_BACKEND", "watsonx")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend() != BackendOllama {
		t.Errorf("Backend = %q, want ollama", cfg.Backend())
	}
	if cfg.ModelID() != "granite3.1-dense:8b" {
		t.Errorf("ModelID = %q", cfg.ModelID())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutorialpipe.yaml")
	body := "use_mocks: true\nllm:\n  max_concurrency: 2\nrefine:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend() != BackendMock || cfg.LLM.MaxConcurrency != 2 || cfg.Refine.Enabled {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, core.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ollama defaults", func(c *Config) {}, false},
		{"watsonx missing credentials", func(c *Config) { c.LLM.Backend = BackendWatsonx }, true},
		{"watsonx missing credentials in mock mode", func(c *Config) {
			c.LLM.Backend = BackendWatsonx
			c.UseMocks = true
		}, false},
		{"watsonx unsupported model", func(c *Config) {
			c.LLM.Backend = BackendWatsonx
			c.Watsonx = WatsonxConfig{APIKey: "k", ProjectID: "p", APIURL: "u", ModelID: "acme/unknown"}
		}, true},
		{"openai without key", func(c *Config) { c.LLM.Backend = BackendOpenAI }, true},
		{"gemini with key", func(c *Config) {
			c.LLM.Backend = BackendGemini
			c.Gemini.APIKey = "k"
		}, false},
		{"unknown backend", func(c *Config) { c.LLM.Backend = "llamafile" }, true},
		{"zero concurrency", func(c *Config) { c.LLM.MaxConcurrency = 0 }, true},
		{"negative qps", func(c *Config) { c.LLM.MaxQPS = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrConfig) {
				t.Errorf("error %v does not wrap ErrConfig", err)
			}
		})
	}
}
