package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// Model runtime
	Backend       string `json:"backend" yaml:"backend" toml:"backend"`
	ModelPath     string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelID       string `json:"model_id" yaml:"model_id" toml:"model_id"`
	ServerURL     string `json:"server_url" yaml:"server_url" toml:"server_url"`
	ServerAPIKey  string `json:"server_api_key" yaml:"server_api_key" toml:"server_api_key"`
	ContextSize   int    `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads       int    `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers     int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	MainGPU       string `json:"main_gpu" yaml:"main_gpu" toml:"main_gpu"`
	Precision     string `json:"precision" yaml:"precision" toml:"precision"`

	LoadTimeoutS    int `json:"load_timeout_seconds" yaml:"load_timeout_seconds" toml:"load_timeout_seconds"`
	RequestTimeoutS int `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`

	// Prompt and sampling
	Template       string   `json:"template" yaml:"template" toml:"template"`
	QuestionMarker string   `json:"question_marker" yaml:"question_marker" toml:"question_marker"`
	AnswerMarker   string   `json:"answer_marker" yaml:"answer_marker" toml:"answer_marker"`
	Greedy         bool     `json:"greedy" yaml:"greedy" toml:"greedy"`
	Temperature    float32  `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK           int      `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP           float32  `json:"top_p" yaml:"top_p" toml:"top_p"`
	MaxNewTokens   int      `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	Seed           int      `json:"seed" yaml:"seed" toml:"seed"`
	Stop           []string `json:"stop" yaml:"stop" toml:"stop"`

	// Admission
	MaxQueueDepth int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitS      int `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	InferTimeoutS int `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`

	// Sessions
	SessionTTLS int    `json:"session_ttl_seconds" yaml:"session_ttl_seconds" toml:"session_ttl_seconds"`
	Greeting    string `json:"greeting" yaml:"greeting" toml:"greeting"`

	// HTTP
	MaxBodyBytes       int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`

	// Page holds presentation strings; none of them affect generation.
	Page Page `json:"page" yaml:"page" toml:"page"`
}

// Page configures the browser chat page.
type Page struct {
	Title          string `json:"title" yaml:"title" toml:"title"`
	LogoURL        string `json:"logo_url" yaml:"logo_url" toml:"logo_url"`
	Credits        string `json:"credits" yaml:"credits" toml:"credits"`
	AccountStatus  string `json:"account_status" yaml:"account_status" toml:"account_status"`
	SupportContact string `json:"support_contact" yaml:"support_contact" toml:"support_contact"`
	BotAvatar      string `json:"bot_avatar" yaml:"bot_avatar" toml:"bot_avatar"`
	UserAvatar     string `json:"user_avatar" yaml:"user_avatar" toml:"user_avatar"`
	// StaticDir serves assets from disk instead of the embedded ones.
	StaticDir string `json:"static_dir" yaml:"static_dir" toml:"static_dir"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
