package config

import (
	"fmt"
	"strings"
)

// Defaults applied by WithDefaults.
const (
	DefaultAddr          = ":8080"
	DefaultLogLevel      = "info"
	DefaultBackend       = "llama"
	DefaultPrecision     = "f16"
	DefaultTemplate      = "en"
	DefaultTemperature   = 1.0
	DefaultTopK          = 50
	DefaultTopP          = 0.9
	DefaultMaxNewTokens  = 1024
	DefaultMaxQueueDepth = 32
	DefaultMaxWaitS      = 30
	DefaultLoadTimeoutS  = 120
	DefaultSessionTTLS   = 3600
	DefaultMaxBodyBytes  = 1 << 20
	DefaultTitle         = "Chat"
	DefaultCredits       = "Author: Lê Bảo Long - Hoàng Minh Thái"
	DefaultAccountStatus = "Active!"
	DefaultLogoURL       = "https://cdn-icons-png.flaticon.com/128/897/897219.png"
)

// WithDefaults returns c with every unspecified field set to its default.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Precision == "" {
		c.Precision = DefaultPrecision
	}
	if c.Template == "" && c.QuestionMarker == "" && c.AnswerMarker == "" {
		c.Template = DefaultTemplate
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.TopP <= 0 {
		c.TopP = DefaultTopP
	}
	if c.MaxNewTokens <= 0 {
		c.MaxNewTokens = DefaultMaxNewTokens
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.MaxWaitS <= 0 {
		c.MaxWaitS = DefaultMaxWaitS
	}
	if c.LoadTimeoutS <= 0 {
		c.LoadTimeoutS = DefaultLoadTimeoutS
	}
	if c.SessionTTLS == 0 {
		c.SessionTTLS = DefaultSessionTTLS
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Page.Title == "" {
		c.Page.Title = DefaultTitle
	}
	if c.Page.Credits == "" {
		c.Page.Credits = DefaultCredits
	}
	if c.Page.AccountStatus == "" {
		c.Page.AccountStatus = DefaultAccountStatus
	}
	if c.Page.LogoURL == "" {
		c.Page.LogoURL = DefaultLogoURL
	}
	return c
}

// Validate reports configuration errors that would otherwise surface only
// when the model is loaded.
func (c Config) Validate() error {
	var errs []string
	switch strings.ToLower(c.Backend) {
	case "llama":
		if strings.TrimSpace(c.ModelPath) == "" {
			errs = append(errs, "model_path is required for the llama backend")
		}
	case "server":
		if strings.TrimSpace(c.ServerURL) == "" {
			errs = append(errs, "server_url is required for the server backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown backend %q (want llama|server)", c.Backend))
	}
	if (c.QuestionMarker == "") != (c.AnswerMarker == "") {
		errs = append(errs, "question_marker and answer_marker must be set together")
	}
	if c.TopP > 1 {
		errs = append(errs, fmt.Sprintf("top_p must be in (0,1], got %v", c.TopP))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "off", "disabled":
	default:
		errs = append(errs, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
