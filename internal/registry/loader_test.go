package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeModels(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, f := range names {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
}

func TestLoadDir_FiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	writeModels(t, dir, "b.GGUF", "a.gguf", "not-model.txt", "model.bin")
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "a.gguf" || models[1].ID != "b.GGUF" {
		t.Fatalf("unexpected order: %+v", models)
	}
	for _, m := range models {
		if !filepath.IsAbs(m.Path) {
			t.Fatalf("path not absolute: %s", m.Path)
		}
	}
}

func TestLoadDir_ExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	sub := filepath.Join(home, "models")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeModels(t, sub, "x.gguf")
	models, err := LoadDir("~/models")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestResolve_File(t *testing.T) {
	dir := t.TempDir()
	writeModels(t, dir, "phogpt-4b-chat.Q4_K_M.gguf")
	m, err := Resolve(filepath.Join(dir, "phogpt-4b-chat.Q4_K_M.gguf"), "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.ID != "phogpt-4b-chat.Q4_K_M.gguf" || m.Name != "phogpt-4b-chat.Q4_K_M" {
		t.Fatalf("unexpected model: %+v", m)
	}
}

func TestResolve_Directory(t *testing.T) {
	dir := t.TempDir()
	writeModels(t, dir, "only.gguf")
	m, err := Resolve(dir, "")
	if err != nil || m.ID != "only.gguf" {
		t.Fatalf("single model dir: %+v err=%v", m, err)
	}

	writeModels(t, dir, "second.gguf")
	if _, err := Resolve(dir, ""); err == nil || !strings.Contains(err.Error(), "set a model id") {
		t.Fatalf("expected ambiguity error, got %v", err)
	}
	m, err = Resolve(dir, "second")
	if err != nil || m.ID != "second.gguf" {
		t.Fatalf("by name: %+v err=%v", m, err)
	}
	if _, err := Resolve(dir, "missing"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestResolve_Errors(t *testing.T) {
	if _, err := Resolve("", ""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	if _, err := Resolve(filepath.Join(t.TempDir(), "nope.gguf"), ""); err == nil {
		t.Fatalf("expected stat error")
	}
	if _, err := Resolve(t.TempDir(), ""); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
