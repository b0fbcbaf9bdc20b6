package prompts

import (
	"context"
	"sort"
	"sync"
	"time"
)

type templateKey struct {
	name    string
	version int
}

// MemoryRepo stores prompt templates in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu        sync.RWMutex
	templates map[templateKey]PromptTemplate
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{templates: make(map[templateKey]PromptTemplate)}
}

// Create stores a new template version.
func (r *MemoryRepo) Create(ctx context.Context, tmpl PromptTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := templateKey{name: tmpl.Name, version: tmpl.Version}
	if _, exists := r.templates[key]; exists {
		return ErrAlreadyExists
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now().UTC()
	}
	tmpl.UpdatedAt = tmpl.CreatedAt
	r.templates[key] = tmpl
	return nil
}

// Get returns one template version.
func (r *MemoryRepo) Get(ctx context.Context, name string, version int) (PromptTemplate, error) {
	if err := ctx.Err(); err != nil {
		return PromptTemplate{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[templateKey{name: name, version: version}]
	if !ok {
		return PromptTemplate{}, ErrNotFound
	}
	return tmpl, nil
}

// ActiveVersions returns up to limit active versions of name, newest first.
func (r *MemoryRepo) ActiveVersions(ctx context.Context, name string, limit int) ([]PromptTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 2
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PromptTemplate
	for key, tmpl := range r.templates {
		if key.name == name && tmpl.Active {
			out = append(out, tmpl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetStatus updates the active/abTesting flags for one version.
func (r *MemoryRepo) SetStatus(ctx context.Context, name string, version int, update StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := templateKey{name: name, version: version}
	tmpl, ok := r.templates[key]
	if !ok {
		return ErrNotFound
	}
	if update.Active != nil {
		tmpl.Active = *update.Active
	}
	if update.ABTesting != nil {
		tmpl.ABTesting = *update.ABTesting
	}
	tmpl.UpdatedAt = time.Now().UTC()
	r.templates[key] = tmpl
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
