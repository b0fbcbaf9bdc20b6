package lessons

import "context"

// Repo defines persistence operations for lessons and their analysis results.
type Repo interface {
	Create(ctx context.Context, lesson Lesson) error
	GetByID(ctx context.Context, lessonID string) (Lesson, error)
	ListBySchool(ctx context.Context, schoolID string, limit, offset int) ([]Lesson, error)
	UpdateStatus(ctx context.Context, lessonID, status string) error
	MarkError(ctx context.Context, lessonID, code string, message string) error

	// SaveAnalysisResult stores the result and advances the lesson to
	// analyzed inside a single transaction. A previous result for the
	// lesson, if any, is replaced.
	SaveAnalysisResult(ctx context.Context, result AnalysisResult) error
	GetAnalysisResult(ctx context.Context, lessonID string) (AnalysisResult, error)
}
