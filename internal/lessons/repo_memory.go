package lessons

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores lessons in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Lesson
	results  map[string]AnalysisResult // keyed by lesson ID
	bySchool map[string][]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:     make(map[string]Lesson),
		results:  make(map[string]AnalysisResult),
		bySchool: make(map[string][]string),
	}
}

// Create stores the lesson.
func (r *MemoryRepo) Create(ctx context.Context, lesson Lesson) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if lesson.Status == "" {
		lesson.Status = StatusTranscribed
	}
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = time.Now().UTC()
	}
	lesson.UpdatedAt = lesson.CreatedAt
	r.byID[lesson.ID] = lesson
	r.bySchool[lesson.SchoolID] = append(r.bySchool[lesson.SchoolID], lesson.ID)
	return nil
}

// GetByID returns a lesson by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, lessonID string) (Lesson, error) {
	if err := ctx.Err(); err != nil {
		return Lesson{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	lesson, ok := r.byID[lessonID]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	return lesson, nil
}

// ListBySchool lists lessons for a school ordered newest-first.
func (r *MemoryRepo) ListBySchool(ctx context.Context, schoolID string, limit, offset int) ([]Lesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Lesson
	for _, id := range r.bySchool[schoolID] {
		out = append(out, r.byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus moves a lesson to the given status and clears any prior error.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, lessonID, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lesson, ok := r.byID[lessonID]
	if !ok {
		return ErrNotFound
	}
	lesson.Status = status
	lesson.ErrorCode = ""
	lesson.ErrorMessage = nil
	lesson.UpdatedAt = time.Now().UTC()
	r.byID[lessonID] = lesson
	return nil
}

// MarkError moves a lesson to the error status and records the failure.
func (r *MemoryRepo) MarkError(ctx context.Context, lessonID, code string, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lesson, ok := r.byID[lessonID]
	if !ok {
		return ErrNotFound
	}
	lesson.Status = StatusError
	lesson.ErrorCode = code
	lesson.ErrorMessage = &message
	lesson.UpdatedAt = time.Now().UTC()
	r.byID[lessonID] = lesson
	return nil
}

// SaveAnalysisResult stores the result and advances the lesson to analyzed.
func (r *MemoryRepo) SaveAnalysisResult(ctx context.Context, result AnalysisResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lesson, ok := r.byID[result.LessonID]
	if !ok {
		return ErrNotFound
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	r.results[result.LessonID] = result
	lesson.Status = StatusAnalyzed
	lesson.ErrorCode = ""
	lesson.ErrorMessage = nil
	lesson.UpdatedAt = time.Now().UTC()
	r.byID[result.LessonID] = lesson
	return nil
}

// GetAnalysisResult returns the stored result for a lesson.
func (r *MemoryRepo) GetAnalysisResult(ctx context.Context, lessonID string) (AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisResult{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[lessonID]
	if !ok {
		return AnalysisResult{}, ErrNoResult
	}
	return result, nil
}

var _ Repo = (*MemoryRepo)(nil)
