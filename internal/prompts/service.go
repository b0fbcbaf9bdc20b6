package prompts

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// Service contains business logic for prompt template selection.
type Service struct {
	Repo Repo

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewService constructs a Service with the default random source.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo, rand: rand.New(rand.NewSource(rand.Int63()))}
}

// GetActive returns the live template for name. With two active versions and
// the newer flagged for A/B testing, each is returned with equal probability;
// otherwise the newest wins.
func (s *Service) GetActive(ctx context.Context, name string) (PromptTemplate, error) {
	versions, err := s.Repo.ActiveVersions(ctx, name, 2)
	if err != nil {
		return PromptTemplate{}, err
	}
	switch len(versions) {
	case 0:
		return PromptTemplate{}, fmt.Errorf("template %q: %w", name, ErrNotFound)
	case 1:
		return versions[0], nil
	}

	newest := versions[0]
	if !newest.ABTesting {
		return newest, nil
	}
	if s.coinFlip() {
		return newest, nil
	}
	return versions[1], nil
}

// Create persists a new template version.
func (s *Service) Create(ctx context.Context, tmpl PromptTemplate) error {
	if tmpl.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if tmpl.Version <= 0 {
		return fmt.Errorf("template version must be positive")
	}
	return s.Repo.Create(ctx, tmpl)
}

// SetStatus updates the active/abTesting flags of one version.
func (s *Service) SetStatus(ctx context.Context, name string, version int, update StatusUpdate) error {
	if update.Active == nil && update.ABTesting == nil {
		return fmt.Errorf("status update requires at least one field")
	}
	return s.Repo.SetStatus(ctx, name, version, update)
}

func (s *Service) coinFlip() bool {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Intn(2) == 0
}
