package prompts

import "context"

// Repo defines persistence operations for prompt templates.
type Repo interface {
	Create(ctx context.Context, tmpl PromptTemplate) error
	Get(ctx context.Context, name string, version int) (PromptTemplate, error)
	// ActiveVersions returns up to limit active versions of name, newest first.
	ActiveVersions(ctx context.Context, name string, limit int) ([]PromptTemplate, error)
	SetStatus(ctx context.Context, name string, version int, update StatusUpdate) error
}
