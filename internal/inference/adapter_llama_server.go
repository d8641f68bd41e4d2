package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// llamaServer implements Runtime by talking to a running llama.cpp server over HTTP.
// Generation uses the OpenAI-compatible /v1/completions stream; tokenization
// and context size come from the native /tokenize and /props endpoints.
type llamaServer struct {
	baseURL    string
	apiKey     string
	model      string
	reqTimeout time.Duration
	ctxSize    int
	httpClient *http.Client
	log        zerolog.Logger
}

// ServerOptions configures the llama.cpp server backend.
type ServerOptions struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	// ContextSize overrides the n_ctx reported by the server when > 0.
	ContextSize int
	Logger      zerolog.Logger
}

// newLlamaServer constructs a server-backed runtime without contacting the server.
func newLlamaServer(o ServerOptions) *llamaServer {
	connect := o.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: every call carries a context deadline instead.
	return &llamaServer{
		baseURL:    strings.TrimRight(o.BaseURL, "/"),
		apiKey:     o.APIKey,
		model:      strings.TrimSpace(o.Model),
		reqTimeout: o.RequestTimeout,
		ctxSize:    o.ContextSize,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
		log:        o.Logger,
	}
}

// connect checks /health and reads the context size from /props.
func (s *llamaServer) connect(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := s.do(hctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("llama server not healthy: %s", resp.Status)
	}
	if s.ctxSize > 0 {
		return nil
	}
	n, err := s.props(hctx)
	if err != nil {
		// Older servers lack /props; overflow checks are then skipped.
		s.log.Warn().Err(err).Str("adapter", "llama_server").Msg("context size unknown")
		return nil
	}
	s.ctxSize = n
	return nil
}

type propsResponse struct {
	NCtx                      int `json:"n_ctx"`
	DefaultGenerationSettings struct {
		NCtx int `json:"n_ctx"`
	} `json:"default_generation_settings"`
}

func (s *llamaServer) props(ctx context.Context) (int, error) {
	resp, err := s.do(ctx, http.MethodGet, "/props", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("props: %s", resp.Status)
	}
	var p propsResponse
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return 0, fmt.Errorf("props: %w", err)
	}
	if p.DefaultGenerationSettings.NCtx > 0 {
		return p.DefaultGenerationSettings.NCtx, nil
	}
	return p.NCtx, nil
}

func (s *llamaServer) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Translate context timeouts/cancels
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrDependencyUnavailable("llama server unreachable: " + err.Error())
	}
	return resp, nil
}

func (s *llamaServer) Name() string {
	if s.model != "" {
		return "llama_server:" + s.model
	}
	return "llama_server"
}

func (s *llamaServer) ContextSize() int { return s.ctxSize }

func (s *llamaServer) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

type tokenizeRequest struct {
	Content    string `json:"content"`
	AddSpecial bool   `json:"add_special"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

func (s *llamaServer) Tokenize(ctx context.Context, text string) ([]int, error) {
	resp, err := s.do(ctx, http.MethodPost, "/tokenize", tokenizeRequest{Content: text, AddSpecial: true})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llama server tokenize error: %s: %s", resp.Status, string(b))
	}
	var tr tokenizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	return tr.Tokens, nil
}

// completionRequest is the payload for /v1/completions. Temperature is sent
// even when zero because zero selects greedy decoding.
type completionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int      `json:"seed,omitempty"`
	Stream      bool     `json:"stream"`
}

// completionChunk accepts both the completions (text) and chat (delta.content) stream shapes.
type completionChunk struct {
	Choices []struct {
		Text  string `json:"text"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (s *llamaServer) Generate(ctx context.Context, prompt string, params Params, onToken func(string) error) (Result, error) {
	if s.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.reqTimeout)
		defer cancel()
	}
	payload := completionRequest{
		Model:       s.model,
		Prompt:      prompt,
		MaxTokens:   params.MaxNewTokens,
		Temperature: params.effectiveTemperature(),
		TopP:        params.TopP,
		TopK:        params.TopK,
		Stop:        params.Stop,
		Seed:        params.Seed,
		Stream:      true,
	}
	resp, err := s.do(ctx, http.MethodPost, "/v1/completions", payload)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("llama server http error: %s: %s", resp.Status, string(b))
	}

	var (
		res Result
		sb  strings.Builder
	)
	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		if l := strings.TrimSpace(line); l != "" && strings.HasPrefix(strings.ToLower(l), "data:") {
			data := strings.TrimSpace(l[len("data:"):])
			if data == "[DONE]" {
				break
			}
			var chunk completionChunk
			if e := json.Unmarshal([]byte(data), &chunk); e != nil {
				s.log.Debug().Str("adapter", "llama_server").Str("line", l).Msg("unknown stream line")
			} else {
				if chunk.Usage != nil {
					res.Usage = *chunk.Usage
				}
				if len(chunk.Choices) > 0 {
					c := chunk.Choices[0]
					frag := c.Text
					if frag == "" {
						frag = c.Delta.Content
					}
					if frag != "" {
						sb.WriteString(frag)
						res.Usage.CompletionTokens++
						if cbErr := onToken(frag); cbErr != nil {
							res.Text = sb.String()
							return res, cbErr
						}
					}
					if c.FinishReason != nil && *c.FinishReason != "" {
						res.FinishReason = *c.FinishReason
					}
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, fmt.Errorf("llama server stream: %w", err)
		}
	}
	res.Text = sb.String()
	if res.FinishReason == "" {
		res.FinishReason = FinishStop
	}
	return res, nil
}

type detokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

type detokenizeResponse struct {
	Content string `json:"content"`
}

// Detokenize decodes token ids through the server's /detokenize endpoint.
func (s *llamaServer) Detokenize(ctx context.Context, tokens []int) (string, error) {
	resp, err := s.do(ctx, http.MethodPost, "/detokenize", detokenizeRequest{Tokens: tokens})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llama server detokenize error: %s: %s", resp.Status, string(b))
	}
	var dr detokenizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", fmt.Errorf("detokenize: %w", err)
	}
	return dr.Content, nil
}
