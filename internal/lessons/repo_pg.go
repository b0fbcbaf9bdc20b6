package lessons

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a lesson.
func (r *PGRepo) Create(ctx context.Context, lesson Lesson) error {
	const query = `
INSERT INTO lessons (
	id, school_id, title, grade_level, subject, objective, audio_key,
	transcript_key, transcript_text, curriculum_key, curriculum_text,
	transcription_cost_usd, status, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`

	createdAt := lesson.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := lesson.Status
	if status == "" {
		status = StatusTranscribed
	}
	_, err := r.DB.ExecContext(ctx, query,
		lesson.ID,
		lesson.SchoolID,
		lesson.Title,
		lesson.GradeLevel,
		lesson.Subject,
		lesson.Objective,
		lesson.AudioKey,
		lesson.TranscriptKey,
		nullString(lesson.TranscriptText),
		lesson.CurriculumKey,
		nullString(lesson.CurriculumText),
		lesson.TranscriptionCostUSD,
		status,
		createdAt,
	)
	return err
}

// GetByID returns a lesson by ID.
func (r *PGRepo) GetByID(ctx context.Context, lessonID string) (Lesson, error) {
	const query = lessonColumns + `
WHERE id = $1
LIMIT 1`

	lesson, err := scanLesson(r.DB.QueryRowContext(ctx, query, lessonID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lesson{}, ErrNotFound
		}
		return Lesson{}, err
	}
	return lesson, nil
}

// ListBySchool lists lessons for a school ordered newest-first.
func (r *PGRepo) ListBySchool(ctx context.Context, schoolID string, limit, offset int) ([]Lesson, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = lessonColumns + `
WHERE school_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, schoolID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lesson)
	}
	return out, rows.Err()
}

// UpdateStatus moves a lesson to the given status and clears any prior error.
func (r *PGRepo) UpdateStatus(ctx context.Context, lessonID, status string) error {
	const query = `
UPDATE lessons
SET status = $1,
    error_code = NULL,
    error_message = NULL,
    updated_at = now()
WHERE id = $2::uuid`

	res, err := r.DB.ExecContext(ctx, query, status, lessonID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkError moves a lesson to the error status and records the failure.
func (r *PGRepo) MarkError(ctx context.Context, lessonID, code string, message string) error {
	const query = `
UPDATE lessons
SET status = $1,
    error_code = $2,
    error_message = $3,
    updated_at = now()
WHERE id = $4::uuid`

	res, err := r.DB.ExecContext(ctx, query, StatusError, code, message, lessonID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAnalysisResult writes the result row and advances the lesson to
// analyzed in one transaction. Either both happen or neither does.
func (r *PGRepo) SaveAnalysisResult(ctx context.Context, result AnalysisResult) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_results WHERE lesson_id = $1::uuid`, result.LessonID); err != nil {
		return err
	}

	const insert = `
INSERT INTO analysis_results (
	id, lesson_id, stages, stage_costs, stage_providers, prompt_versions,
	adherence, total_cost_usd, duration_ms, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	stages, err := marshalJSONB(result.Stages)
	if err != nil {
		return err
	}
	costs, err := marshalJSONB(result.StageCosts)
	if err != nil {
		return err
	}
	providers, err := marshalJSONB(result.StageProviders)
	if err != nil {
		return err
	}
	versions, err := marshalJSONB(result.PromptVersions)
	if err != nil {
		return err
	}
	var adherence any
	if result.Adherence != nil {
		adherence, err = json.Marshal(result.Adherence)
		if err != nil {
			return err
		}
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, insert,
		result.ID,
		result.LessonID,
		stages,
		costs,
		providers,
		versions,
		adherence,
		result.TotalCostUSD,
		result.DurationMS,
		createdAt,
	); err != nil {
		return err
	}

	const advance = `
UPDATE lessons
SET status = $1,
    error_code = NULL,
    error_message = NULL,
    updated_at = now()
WHERE id = $2::uuid`

	res, err := tx.ExecContext(ctx, advance, StatusAnalyzed, result.LessonID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// GetAnalysisResult returns the stored result for a lesson.
func (r *PGRepo) GetAnalysisResult(ctx context.Context, lessonID string) (AnalysisResult, error) {
	const query = `
SELECT id, lesson_id, stages, stage_costs, stage_providers, prompt_versions,
       adherence, total_cost_usd, duration_ms, created_at
FROM analysis_results
WHERE lesson_id = $1::uuid
LIMIT 1`

	var result AnalysisResult
	var stages, costs, providers, versions []byte
	var adherence sql.NullString
	err := r.DB.QueryRowContext(ctx, query, lessonID).Scan(
		&result.ID,
		&result.LessonID,
		&stages,
		&costs,
		&providers,
		&versions,
		&adherence,
		&result.TotalCostUSD,
		&result.DurationMS,
		&result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnalysisResult{}, ErrNoResult
		}
		return AnalysisResult{}, err
	}
	if err := json.Unmarshal(stages, &result.Stages); err != nil {
		return AnalysisResult{}, err
	}
	if err := json.Unmarshal(costs, &result.StageCosts); err != nil {
		return AnalysisResult{}, err
	}
	if err := json.Unmarshal(providers, &result.StageProviders); err != nil {
		return AnalysisResult{}, err
	}
	if err := json.Unmarshal(versions, &result.PromptVersions); err != nil {
		return AnalysisResult{}, err
	}
	if adherence.Valid {
		if err := json.Unmarshal([]byte(adherence.String), &result.Adherence); err != nil {
			result.Adherence = nil
		}
	}
	return result, nil
}

const lessonColumns = `
SELECT id, school_id, title, grade_level, subject, objective, audio_key,
       transcript_key, transcript_text, curriculum_key, curriculum_text,
       transcription_cost_usd, status, error_code, error_message, created_at, updated_at
FROM lessons`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLesson(row rowScanner) (Lesson, error) {
	var lesson Lesson
	var transcriptText sql.NullString
	var curriculumText sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	if err := row.Scan(
		&lesson.ID,
		&lesson.SchoolID,
		&lesson.Title,
		&lesson.GradeLevel,
		&lesson.Subject,
		&lesson.Objective,
		&lesson.AudioKey,
		&lesson.TranscriptKey,
		&transcriptText,
		&lesson.CurriculumKey,
		&curriculumText,
		&lesson.TranscriptionCostUSD,
		&lesson.Status,
		&errorCode,
		&errorMessage,
		&lesson.CreatedAt,
		&lesson.UpdatedAt,
	); err != nil {
		return Lesson{}, err
	}
	if transcriptText.Valid {
		lesson.TranscriptText = transcriptText.String
	}
	if curriculumText.Valid {
		lesson.CurriculumText = curriculumText.String
	}
	if errorCode.Valid {
		lesson.ErrorCode = errorCode.String
	}
	if errorMessage.Valid {
		lesson.ErrorMessage = &errorMessage.String
	}
	return lesson, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(value)
}

var _ Repo = (*PGRepo)(nil)
