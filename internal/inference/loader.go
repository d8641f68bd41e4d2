package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chatd/internal/registry"
)

// Backend names accepted by Load.
const (
	BackendLlama  = "llama"
	BackendServer = "server"
)

// Precision names accepted by LocalOptions.
const (
	PrecisionF16 = "f16"
	PrecisionF32 = "f32"
)

// LocalOptions configures the in-process llama.cpp backend.
type LocalOptions struct {
	// ModelPath is a .gguf file or a directory holding them.
	ModelPath string
	// ModelID selects a file when ModelPath is a directory with several models.
	ModelID     string
	ContextSize int
	Threads     int
	// GPULayers and MainGPU describe the target device; 0 layers means CPU only.
	GPULayers int
	MainGPU   string
	Precision string
}

// LoaderConfig selects and configures a backend.
type LoaderConfig struct {
	Backend string
	Local   LocalOptions
	Server  ServerOptions
	Logger  zerolog.Logger
}

// LlamaBuilt reports whether this binary includes the in-process llama runtime.
func LlamaBuilt() bool { return llamaBuilt }

// Load returns an initialized Runtime or a *ModelLoadError. It is meant to be
// called once at startup; failures must not be deferred to the first request.
func Load(ctx context.Context, cfg LoaderConfig) (Runtime, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendServer:
		if strings.TrimSpace(cfg.Server.BaseURL) == "" {
			return nil, ErrModelLoad(cfg.Server.Model, fmt.Errorf("server backend requires a base URL"))
		}
		so := cfg.Server
		so.Logger = cfg.Logger
		rt := newLlamaServer(so)
		if err := rt.connect(ctx); err != nil {
			return nil, ErrModelLoad(rt.Name(), err)
		}
		cfg.Logger.Info().Str("backend", BackendServer).Str("url", rt.baseURL).Int("n_ctx", rt.ContextSize()).Msg("model runtime ready")
		return rt, nil
	case BackendLlama, "":
		lo := cfg.Local
		switch strings.ToLower(lo.Precision) {
		case "", PrecisionF16, "bf16", "float16":
			lo.Precision = PrecisionF16
		case PrecisionF32, "float32":
			lo.Precision = PrecisionF32
		default:
			return nil, ErrModelLoad(lo.ModelPath, fmt.Errorf("unsupported precision %q", lo.Precision))
		}
		mdl, err := registry.Resolve(lo.ModelPath, lo.ModelID)
		if err != nil {
			return nil, ErrModelLoad(lo.ModelPath, err)
		}
		lo.ModelPath = mdl.Path
		rt, err := loadLlamaLocal(lo)
		if err != nil {
			return nil, ErrModelLoad(mdl.ID, err)
		}
		cfg.Logger.Info().Str("backend", BackendLlama).Str("model", mdl.ID).Int("n_ctx", rt.ContextSize()).
			Int("gpu_layers", lo.GPULayers).Str("precision", lo.Precision).Msg("model runtime ready")
		return rt, nil
	default:
		return nil, ErrModelLoad("", fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}
