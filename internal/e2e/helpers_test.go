package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/chatbot"
	"chatd/internal/httpapi"
	"chatd/internal/inference"
	"chatd/internal/session"
)

// fakeLlamaCpp emulates the llama.cpp server endpoints the server runtime
// uses. Tokens are whitespace-separated words, so detokenize returns the
// prompt with its whitespace collapsed.
type fakeLlamaCpp struct {
	nCtx  int
	reply []string
	delay time.Duration

	mu    sync.Mutex
	vocab []string
	calls int
}

func (f *fakeLlamaCpp) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/props", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"default_generation_settings": map[string]int{"n_ctx": f.nCtx}})
	})
	mux.HandleFunc("/tokenize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		var toks []int
		for _, word := range strings.Fields(req.Content) {
			toks = append(toks, len(f.vocab))
			f.vocab = append(f.vocab, word)
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string][]int{"tokens": toks})
	})
	mux.HandleFunc("/detokenize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tokens []int `json:"tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		words := make([]string, 0, len(req.Tokens))
		for _, id := range req.Tokens {
			if id >= 0 && id < len(f.vocab) {
				words = append(words, f.vocab[id])
			}
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"content": strings.Join(words, " ")})
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls++
		f.mu.Unlock()
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, frag := range f.reply {
			finish := "null"
			if i == len(f.reply)-1 {
				finish = `"stop"`
			}
			text, _ := json.Marshal(frag)
			_, _ = io.WriteString(w, `data: {"choices":[{"text":`+string(text)+`,"finish_reason":`+finish+"}]}\n\n")
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	return mux
}

func (f *fakeLlamaCpp) completions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stackOptions struct {
	template chatbot.Template
	greeting string
	depth    int
	wait     time.Duration
}

// newStack wires a fake llama.cpp server through the real runtime loader,
// bot, session store and router.
func newStack(t *testing.T, llm *fakeLlamaCpp, o stackOptions) (*httptest.Server, *session.Store) {
	t.Helper()
	upstream := httptest.NewServer(llm.handler())
	t.Cleanup(upstream.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rt, err := inference.Load(ctx, inference.LoaderConfig{
		Backend: inference.BackendServer,
		Server:  inference.ServerOptions{BaseURL: upstream.URL, Model: "phogpt-4b-chat"},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("load runtime: %v", err)
	}
	opts := []chatbot.Option{chatbot.WithLogger(zerolog.Nop())}
	if o.template.Answer != "" {
		opts = append(opts, chatbot.WithTemplate(o.template))
	}
	if o.depth > 0 {
		opts = append(opts, chatbot.WithQueue(o.depth, o.wait))
	}
	bot, err := chatbot.New(ctx, rt, opts...)
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	t.Cleanup(func() { _ = bot.Close() })

	store := session.NewStore(bot, session.Options{Greeting: o.greeting})
	srv := httptest.NewServer(httpapi.NewMux(bot, store, httpapi.Page{Title: "chatd"}))
	t.Cleanup(srv.Close)
	return srv, store
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
