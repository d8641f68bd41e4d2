package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: :9999
backend: server
server_url: http://127.0.0.1:8081
template: vi
top_k: 40
stop: ["</s>"]
page:
  title: Trợ lý
  static_dir: /srv/web
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Backend != "server" || cfg.ServerURL != "http://127.0.0.1:8081" || cfg.Template != "vi" || cfg.TopK != 40 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Stop) != 1 || cfg.Stop[0] != "</s>" {
		t.Fatalf("stop: %v", cfg.Stop)
	}
	if cfg.Page.Title != "Trợ lý" || cfg.Page.StaticDir != "/srv/web" {
		t.Fatalf("page: %+v", cfg.Page)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","model_path":"/m/phogpt.gguf","greedy":true,"max_queue_depth":4,"page":{"credits":"x"}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.ModelPath != "/m/phogpt.gguf" || !cfg.Greedy || cfg.MaxQueueDepth != 4 || cfg.Page.Credits != "x" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nmodel_path=\"/x\"\ntemperature=0.7\nquestion_marker=\"Q:\"\nanswer_marker=\"A:\"\n[page]\ntitle=\"Bot\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.ModelPath != "/x" || cfg.Temperature != 0.7 || cfg.QuestionMarker != "Q:" || cfg.AnswerMarker != "A:" || cfg.Page.Title != "Bot" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
	d := t.TempDir()
	cases := map[string]string{
		"cfg.txt":   "not supported",
		"bad.yaml":  "addr: :8080\n: broken\n",
		"bad.json":  `{ "addr": ":8080", "model_path": }`,
		"bad.toml":  "addr=:8080\nmodel_path\n",
		"type.json": `{"top_k":"many"}`,
	}
	for name, body := range cases {
		if _, err := Load(writeTempFile(t, d, name, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{ModelPath: "/m.gguf"}.WithDefaults()
	if cfg.Addr != DefaultAddr || cfg.Backend != DefaultBackend || cfg.Template != DefaultTemplate {
		t.Fatalf("unexpected: %+v", cfg)
	}
	if cfg.Temperature != DefaultTemperature || cfg.TopK != DefaultTopK || cfg.TopP != DefaultTopP || cfg.MaxNewTokens != DefaultMaxNewTokens {
		t.Fatalf("sampling defaults: %+v", cfg)
	}
	if cfg.MaxQueueDepth != DefaultMaxQueueDepth || cfg.MaxWaitS != DefaultMaxWaitS || cfg.SessionTTLS != DefaultSessionTTLS {
		t.Fatalf("admission defaults: %+v", cfg)
	}
	if cfg.Page.Title != DefaultTitle || cfg.Page.AccountStatus != DefaultAccountStatus {
		t.Fatalf("page defaults: %+v", cfg.Page)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	custom := Config{Template: "vi", TopK: 7, SessionTTLS: -1}.WithDefaults()
	if custom.Template != "vi" || custom.TopK != 7 || custom.SessionTTLS != -1 {
		t.Fatalf("explicit values overwritten: %+v", custom)
	}
	markers := Config{QuestionMarker: "Q:", AnswerMarker: "A:"}.WithDefaults()
	if markers.Template != "" {
		t.Fatalf("template must stay empty when markers are set, got %q", markers.Template)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"llama without path", Config{}, "model_path"},
		{"server without url", Config{Backend: "server"}, "server_url"},
		{"unknown backend", Config{Backend: "onnx"}, "unknown backend"},
		{"half markers", Config{ModelPath: "/m", QuestionMarker: "Q:"}, "set together"},
		{"top_p", Config{ModelPath: "/m", TopP: 1.5}, "top_p"},
		{"log level", Config{ModelPath: "/m", LogLevel: "loud"}, "log_level"},
	}
	for _, tc := range cases {
		err := tc.cfg.WithDefaults().Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: got %v, want error containing %q", tc.name, err, tc.want)
		}
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "chatd.example.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Template != "vi" || cfg.Greeting == "" || !strings.Contains(cfg.Page.SupportContact, "Email:") {
		t.Fatalf("unexpected example config: %+v", cfg)
	}
}
