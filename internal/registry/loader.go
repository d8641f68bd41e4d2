package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chatd/internal/common/fsutil"
	"chatd/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a registry from filenames.
// ID is the full filename (including extension); Path is the absolute file path.
// Results are sorted by ID.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isGGUF(name) {
			continue
		}
		models = append(models, types.Model{ID: name, Name: strings.TrimSuffix(name, filepath.Ext(name)), Path: filepath.Join(abs, name)})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve turns a model identifier into a single model file.
// path may name a .gguf file directly or a directory; in the directory case
// id picks the file (by filename, with or without extension) unless the
// directory holds exactly one model.
func Resolve(path, id string) (types.Model, error) {
	if strings.TrimSpace(path) == "" {
		return types.Model{}, fmt.Errorf("empty model path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return types.Model{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return types.Model{}, fmt.Errorf("model path: %w", err)
	}
	if !fi.IsDir() {
		abs, err := filepath.Abs(p)
		if err != nil {
			return types.Model{}, fmt.Errorf("abs path: %w", err)
		}
		name := filepath.Base(abs)
		return types.Model{ID: name, Name: strings.TrimSuffix(name, filepath.Ext(name)), Path: abs}, nil
	}
	models, err := LoadDir(p)
	if err != nil {
		return types.Model{}, err
	}
	if len(models) == 0 {
		return types.Model{}, fmt.Errorf("no *.gguf models in %s", p)
	}
	if id == "" {
		if len(models) == 1 {
			return models[0], nil
		}
		return types.Model{}, fmt.Errorf("%d models in %s; set a model id", len(models), p)
	}
	for _, m := range models {
		if m.ID == id || m.Name == id {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("model not found: %s", id)
}

func isGGUF(name string) bool { return strings.HasSuffix(strings.ToLower(name), ".gguf") }
