package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and caches course templates from the filesystem.
type Loader struct {
	rootDir   string
	templates map[string]Template
	mu        sync.RWMutex
}

// NewLoader creates a loader and loads every template under rootDir. An empty
// rootDir gives an empty catalog.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:   rootDir,
		templates: make(map[string]Template),
	}
	if rootDir == "" {
		return l, nil
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("course catalog loaded", "templates", len(l.templates))
	return l, nil
}

// Get returns a template by ID.
func (l *Loader) Get(id string) (Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[id]
	return t, ok
}

// All returns every template, sorted by ID.
func (l *Loader) All() []Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Template, 0, len(l.templates))
	for _, t := range l.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Loader) loadAll() error {
	if _, err := os.Stat(l.rootDir); err != nil {
		return err
	}
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadTemplate(path)
		}
		return nil
	})
}

func (l *Loader) loadTemplate(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		slog.Warn("skipping invalid template YAML", "path", path, "error", err)
		return nil
	}
	if tmpl.ID == "" {
		return nil // Not a template file
	}

	// A sibling <name>.syllabus.md supplies the syllabus when the YAML has none.
	if tmpl.SyllabusText == "" {
		ext := filepath.Ext(path)
		if md, err := os.ReadFile(strings.TrimSuffix(path, ext) + ".syllabus.md"); err == nil {
			tmpl.SyllabusText = string(md)
		}
	}

	if _, err := tmpl.Course().Normalize(); err != nil {
		slog.Warn("skipping invalid course template", "path", path, "id", tmpl.ID, "error", err)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, dup := l.templates[tmpl.ID]; dup {
		return fmt.Errorf("duplicate template id %q (%s)", tmpl.ID, prev.Title)
	}
	l.templates[tmpl.ID] = tmpl
	return nil
}
