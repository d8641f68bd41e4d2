package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatd/internal/chatbot"
	"chatd/internal/config"
	"chatd/internal/inference"
)

// app carries the resolved configuration between cobra hooks and commands.
type app struct {
	configPath string
	flags      config.Config
	cors       string
	stop       string

	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command { return newRootCmdWith(&app{}) }

// newRootCmdWith builds the command tree around a.
func newRootCmdWith(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Instruction chat bot backed by a local llama.cpp model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", os.Getenv("CHATD_CONFIG"), "Config file (.yaml, .json, .toml); defaults to CHATD_CONFIG")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "Log level: debug|info|warn|error (defaults CHATD_LOG_LEVEL or info)")
	pf.StringVar(&a.flags.Backend, "backend", "", "Model runtime: llama (in-process) or server (llama.cpp HTTP server)")
	pf.StringVar(&a.flags.ModelPath, "model", "", "GGUF model file, or a directory of models")
	pf.StringVar(&a.flags.ModelID, "model-id", "", "Model to pick when --model is a directory")
	pf.StringVar(&a.flags.ServerURL, "server-url", "", "llama.cpp server base URL for --backend=server")
	pf.StringVar(&a.flags.ServerAPIKey, "server-api-key", "", "Bearer token for the llama.cpp server")
	pf.IntVar(&a.flags.ContextSize, "ctx-size", 0, "Context window in tokens (0 = model default)")
	pf.IntVar(&a.flags.Threads, "threads", 0, "CPU threads for generation (0 = runtime default)")
	pf.IntVar(&a.flags.GPULayers, "gpu-layers", 0, "Layers to offload to the GPU")
	pf.StringVar(&a.flags.MainGPU, "main-gpu", "", "GPU used for scratch and small tensors")
	pf.StringVar(&a.flags.Precision, "precision", "", "KV cache precision: f16 or f32")
	pf.StringVar(&a.flags.Template, "template", "", "Prompt template: en or vi")
	pf.BoolVar(&a.flags.Greedy, "greedy", false, "Disable sampling and decode greedily")
	pf.Float32Var(&a.flags.Temperature, "temperature", 0, "Sampling temperature (default 1.0)")
	pf.IntVar(&a.flags.TopK, "top-k", 0, "Top-k sampling (default 50)")
	pf.Float32Var(&a.flags.TopP, "top-p", 0, "Top-p sampling (default 0.9)")
	pf.IntVar(&a.flags.MaxNewTokens, "max-new-tokens", 0, "Maximum generated tokens (default 1024)")
	pf.IntVar(&a.flags.Seed, "seed", 0, "Sampling seed (0 = random)")
	pf.StringVar(&a.stop, "stop", "", "Comma-separated stop sequences")
	pf.IntVar(&a.flags.LoadTimeoutS, "load-timeout", 0, "Seconds to wait for the model to load")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.resolve(cmd)
	}

	root.AddCommand(newServeCmd(a), newChatCmd(a), newVersionCmd())
	return root
}

// resolve loads the config file, then applies env defaults and explicitly
// set flags on top of it.
func (a *app) resolve(cmd *cobra.Command) error {
	var cfg config.Config
	if a.configPath != "" {
		c, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	a.flags.Stop = splitCSV(a.stop)
	a.flags.CORSAllowedOrigins = splitCSV(a.cors)
	applyEnv(&cfg, os.LookupEnv)
	mergeFlags(&cfg, a.flags, cmd.Flags().Changed)
	a.cfg = cfg.WithDefaults()
	a.log = newLogger(a.cfg.LogLevel, os.Stderr)
	if cmd.Name() == "version" {
		return nil
	}
	return a.cfg.Validate()
}

// applyEnv fills values that the CHATD_* environment provides.
func applyEnv(cfg *config.Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("CHATD_ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := lookup("CHATD_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup("CHATD_MODEL"); ok && v != "" {
		cfg.ModelPath = v
	}
	if v, ok := lookup("CHATD_SERVER_API_KEY"); ok && v != "" {
		cfg.ServerAPIKey = v
	}
}

// mergeFlags copies every flag the user set from fl into cfg.
func mergeFlags(cfg *config.Config, fl config.Config, changed func(string) bool) {
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}
	set("addr", func() { cfg.Addr = fl.Addr })
	set("log-level", func() { cfg.LogLevel = fl.LogLevel })
	set("backend", func() { cfg.Backend = fl.Backend })
	set("model", func() { cfg.ModelPath = fl.ModelPath })
	set("model-id", func() { cfg.ModelID = fl.ModelID })
	set("server-url", func() { cfg.ServerURL = fl.ServerURL })
	set("server-api-key", func() { cfg.ServerAPIKey = fl.ServerAPIKey })
	set("ctx-size", func() { cfg.ContextSize = fl.ContextSize })
	set("threads", func() { cfg.Threads = fl.Threads })
	set("gpu-layers", func() { cfg.GPULayers = fl.GPULayers })
	set("main-gpu", func() { cfg.MainGPU = fl.MainGPU })
	set("precision", func() { cfg.Precision = fl.Precision })
	set("template", func() { cfg.Template = fl.Template })
	set("greedy", func() { cfg.Greedy = fl.Greedy })
	set("temperature", func() { cfg.Temperature = fl.Temperature })
	set("top-k", func() { cfg.TopK = fl.TopK })
	set("top-p", func() { cfg.TopP = fl.TopP })
	set("max-new-tokens", func() { cfg.MaxNewTokens = fl.MaxNewTokens })
	set("seed", func() { cfg.Seed = fl.Seed })
	set("stop", func() { cfg.Stop = fl.Stop })
	set("load-timeout", func() { cfg.LoadTimeoutS = fl.LoadTimeoutS })
	set("max-queue-depth", func() { cfg.MaxQueueDepth = fl.MaxQueueDepth })
	set("max-wait", func() { cfg.MaxWaitS = fl.MaxWaitS })
	set("infer-timeout", func() { cfg.InferTimeoutS = fl.InferTimeoutS })
	set("session-ttl", func() { cfg.SessionTTLS = fl.SessionTTLS })
	set("max-body-bytes", func() { cfg.MaxBodyBytes = fl.MaxBodyBytes })
	set("cors-enabled", func() { cfg.CORSEnabled = fl.CORSEnabled })
	set("cors-origins", func() { cfg.CORSAllowedOrigins = fl.CORSAllowedOrigins })
	set("static-dir", func() { cfg.Page.StaticDir = fl.Page.StaticDir })
}

// splitCSV splits a comma-separated flag value, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// template resolves the prompt template from a name or explicit markers.
func promptTemplate(cfg config.Config) (chatbot.Template, error) {
	if cfg.QuestionMarker != "" || cfg.AnswerMarker != "" {
		t := chatbot.Template{Question: cfg.QuestionMarker, Answer: cfg.AnswerMarker}
		return t, t.Validate()
	}
	return chatbot.TemplateByName(cfg.Template)
}

// params maps config sampling fields to generation parameters.
func params(cfg config.Config) inference.Params {
	p := inference.DefaultParams()
	p.DoSample = !cfg.Greedy
	p.Temperature = cfg.Temperature
	p.TopK = cfg.TopK
	p.TopP = cfg.TopP
	p.MaxNewTokens = cfg.MaxNewTokens
	p.Seed = cfg.Seed
	p.Stop = cfg.Stop
	return p.WithDefaults()
}

// loaderConfig maps config runtime fields to the inference loader.
func loaderConfig(cfg config.Config, log zerolog.Logger) inference.LoaderConfig {
	return inference.LoaderConfig{
		Backend: cfg.Backend,
		Local: inference.LocalOptions{
			ModelPath:   cfg.ModelPath,
			ModelID:     cfg.ModelID,
			ContextSize: cfg.ContextSize,
			Threads:     cfg.Threads,
			GPULayers:   cfg.GPULayers,
			MainGPU:     cfg.MainGPU,
			Precision:   cfg.Precision,
		},
		Server: inference.ServerOptions{
			BaseURL:        cfg.ServerURL,
			APIKey:         cfg.ServerAPIKey,
			Model:          cfg.ModelID,
			RequestTimeout: seconds(cfg.RequestTimeoutS),
			ContextSize:    cfg.ContextSize,
		},
		Logger: log,
	}
}

// newBot loads the runtime and wraps it in a Bot. Load failures are fatal.
func (a *app) newBot(cmd *cobra.Command) (*chatbot.Bot, error) {
	tmpl, err := promptTemplate(a.cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := contextWithTimeout(cmd, seconds(a.cfg.LoadTimeoutS))
	defer cancel()
	a.log.Info().Str("backend", a.cfg.Backend).Str("model", a.cfg.ModelPath).Msg("loading model")
	start := time.Now()
	rt, err := inference.Load(ctx, loaderConfig(a.cfg, a.log))
	if err != nil {
		return nil, err
	}
	bot, err := chatbot.New(ctx, rt,
		chatbot.WithTemplate(tmpl),
		chatbot.WithParams(params(a.cfg)),
		chatbot.WithQueue(a.cfg.MaxQueueDepth, seconds(a.cfg.MaxWaitS)),
		chatbot.WithLogger(a.log),
	)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	a.log.Info().Str("runtime", rt.Name()).Int("context_size", rt.ContextSize()).Dur("took", time.Since(start)).Msg("model ready")
	return bot, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
