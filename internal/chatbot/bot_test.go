package chatbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chatd/internal/inference"
)

func TestNew_FailsFast(t *testing.T) {
	if _, err := New(testCtx(t), nil); !inference.IsModelLoad(err) {
		t.Fatalf("nil runtime: expected model load error, got %v", err)
	}
	rt := &fakeRuntime{tokErr: errors.New("tokenizer missing")}
	if _, err := New(testCtx(t), rt); !inference.IsModelLoad(err) {
		t.Fatalf("broken tokenizer: expected model load error, got %v", err)
	}
	if _, err := New(testCtx(t), &fakeRuntime{}, WithTemplate(Template{Question: "Q:"})); err == nil {
		t.Fatalf("expected invalid template error")
	}
}

func TestGenerateResponse_Basic(t *testing.T) {
	rt := &fakeRuntime{reply: "  2+2 equals 4.\n"}
	b := newTestBot(t, rt)
	got, err := b.GenerateResponse(testCtx(t), "What is 2+2?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "2+2 equals 4." {
		t.Fatalf("got %q", got)
	}
	if len(rt.prompts) != 1 || rt.prompts[0] != "### Question: What is 2+2?\n### Answer:" {
		t.Fatalf("unexpected prompts: %q", rt.prompts)
	}
	p := rt.params[0]
	if !p.DoSample || p.Temperature != 1.0 || p.TopK != 50 || p.TopP != 0.9 || p.MaxNewTokens != 1024 {
		t.Fatalf("unexpected params: %+v", p)
	}
	if p.EOSTokenID != inference.TokenFromModel || p.PadTokenID != inference.TokenFromModel {
		t.Fatalf("unexpected special token ids: %+v", p)
	}
}

func TestGenerateResponse_NeverReturnsMarkerOrPadding(t *testing.T) {
	replies := []string{
		" first\n### Answer: second",
		"\n\n### Answer:",
		"plain",
		"   ",
	}
	for _, r := range replies {
		b := newTestBot(t, &fakeRuntime{reply: r})
		got, err := b.GenerateResponse(testCtx(t), "hi")
		if err != nil {
			t.Fatalf("reply %q: %v", r, err)
		}
		if strings.Contains(got, DefaultTemplate.Answer) {
			t.Fatalf("reply %q: result contains marker: %q", r, got)
		}
		if got != strings.TrimSpace(got) {
			t.Fatalf("reply %q: result not trimmed: %q", r, got)
		}
	}
}

func TestGenerateResponse_EmptyInstruction(t *testing.T) {
	rt := &fakeRuntime{reply: " ok"}
	b := newTestBot(t, rt)
	got, err := b.GenerateResponse(testCtx(t), "")
	if err != nil || got != "ok" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if rt.prompts[0] != "### Question: \n### Answer:" {
		t.Fatalf("prompt=%q", rt.prompts[0])
	}
}

func TestGenerateResponse_ContextOverflow(t *testing.T) {
	rt := &fakeRuntime{ctxSize: 3, reply: "x"}
	b := newTestBot(t, rt)
	_, err := b.GenerateResponse(testCtx(t), "What is 2+2?")
	if !inference.IsContextOverflow(err) {
		t.Fatalf("expected context overflow, got %v", err)
	}
	var ce *inference.ContextOverflowError
	if !errors.As(err, &ce) || ce.Tokens != 7 || ce.Context != 3 {
		t.Fatalf("unexpected error detail: %+v", ce)
	}
	if len(rt.prompts) != 0 {
		t.Fatalf("generate must not run on overflow")
	}
	if s := b.Status(); s.LastError == "" {
		t.Fatalf("last error not recorded")
	}
}

func TestGenerateResponse_MalformedOutput(t *testing.T) {
	rt := detokRuntime{fakeRuntime: &fakeRuntime{reply: " Hallo"}, decoded: "### Frage: hi\n### Antwort:"}
	b := newTestBot(t, rt)
	_, err := b.GenerateResponse(testCtx(t), "hi")
	if !inference.IsMalformedOutput(err) {
		t.Fatalf("expected malformed output, got %v", err)
	}
}

func TestGenerateResponse_DetokenizedPrompt(t *testing.T) {
	rt := detokRuntime{fakeRuntime: &fakeRuntime{reply: " Hello there"}, decoded: "<s>### Question: hi\n### Answer:"}
	b := newTestBot(t, rt)
	got, err := b.GenerateResponse(testCtx(t), "hi")
	if err != nil || got != "Hello there" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestGenerateResponse_RuntimeError(t *testing.T) {
	boom := errors.New("cuda oom")
	b := newTestBot(t, &fakeRuntime{genErr: boom})
	if _, err := b.GenerateResponse(testCtx(t), "hi"); !errors.Is(err, boom) {
		t.Fatalf("expected runtime error, got %v", err)
	}
}

func TestGenerateResponse_CustomParamsAndTemplate(t *testing.T) {
	rt := &fakeRuntime{reply: " Chào bạn"}
	b := newTestBot(t, rt, WithTemplate(VietnameseTemplate), WithParams(inference.Params{DoSample: false, TopK: 10}))
	got, err := b.GenerateResponse(testCtx(t), "xin chào")
	if err != nil || got != "Chào bạn" {
		t.Fatalf("got %q err=%v", got, err)
	}
	p := rt.params[0]
	if p.DoSample || p.TopK != 10 || p.TopP != 0.9 || p.MaxNewTokens != 1024 {
		t.Fatalf("unexpected params: %+v", p)
	}
}

func TestGenerateResponse_SingleInFlight(t *testing.T) {
	rt := &fakeRuntime{reply: " ok", block: make(chan struct{})}
	b := newTestBot(t, rt)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.GenerateResponse(testCtx(t), "hi"); err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}
	waitFor(t, func() bool { s := b.Status(); return s.Inflight == 1 && s.QueueLen == 3 })
	close(rt.block)
	wg.Wait()
	if rt.maxRunning != 1 {
		t.Fatalf("max concurrent generations = %d, want 1", rt.maxRunning)
	}
}

func TestGenerateResponse_Backpressure(t *testing.T) {
	rt := &fakeRuntime{reply: " ok", block: make(chan struct{})}
	b := newTestBot(t, rt, WithQueue(1, 50*time.Millisecond))
	done := make(chan error, 1)
	go func() {
		_, err := b.GenerateResponse(context.Background(), "first")
		done <- err
	}()
	waitFor(t, func() bool { return b.Status().Inflight == 1 })

	waiting := make(chan error, 1)
	go func() {
		_, err := b.GenerateResponse(context.Background(), "second")
		waiting <- err
	}()
	waitFor(t, func() bool { return b.Status().QueueLen == 1 })

	if _, err := b.GenerateResponse(testCtx(t), "third"); inference.TooBusyReason(err) != "queue_full" {
		t.Fatalf("expected queue_full, got %v", err)
	}
	if err := <-waiting; inference.TooBusyReason(err) != "wait_timeout" {
		t.Fatalf("expected wait_timeout, got %v", err)
	}
	close(rt.block)
	if err := <-done; err != nil {
		t.Fatalf("first: %v", err)
	}
	if s := b.Status(); s.QueueLen != 0 || s.Inflight != 0 {
		t.Fatalf("slots leaked: %+v", s)
	}
}

func TestGenerateResponse_CanceledWhileWaiting(t *testing.T) {
	rt := &fakeRuntime{reply: " ok", block: make(chan struct{})}
	b := newTestBot(t, rt)
	go func() { _, _ = b.GenerateResponse(context.Background(), "first") }()
	waitFor(t, func() bool { return b.Status().Inflight == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := b.GenerateResponse(ctx, "second")
		errCh <- err
	}()
	waitFor(t, func() bool { return b.Status().QueueLen == 1 })
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	close(rt.block)
}

func TestClose(t *testing.T) {
	rt := &fakeRuntime{reply: " ok"}
	b := newTestBot(t, rt)
	if !b.Ready() {
		t.Fatalf("expected ready")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if b.Ready() || !rt.closed {
		t.Fatalf("expected closed bot and runtime")
	}
	if _, err := b.GenerateResponse(testCtx(t), "hi"); !inference.IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable after close, got %v", err)
	}
	if s := b.Status(); s.State != "closed" {
		t.Fatalf("state=%s", s.State)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
