package prompts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new template version.
func (r *PGRepo) Create(ctx context.Context, tmpl PromptTemplate) error {
	const query = `
INSERT INTO prompt_templates (name, version, body, default_options, active, ab_testing, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	options, err := marshalJSONB(tmpl.DefaultOptions)
	if err != nil {
		return err
	}
	createdAt := tmpl.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = r.DB.ExecContext(ctx, query,
		tmpl.Name,
		tmpl.Version,
		tmpl.Body,
		options,
		tmpl.Active,
		tmpl.ABTesting,
		createdAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

// Get returns one template version.
func (r *PGRepo) Get(ctx context.Context, name string, version int) (PromptTemplate, error) {
	const query = `
SELECT name, version, body, default_options, active, ab_testing, created_at, updated_at
FROM prompt_templates
WHERE name = $1 AND version = $2
LIMIT 1`

	row := r.DB.QueryRowContext(ctx, query, name, version)
	tmpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PromptTemplate{}, ErrNotFound
		}
		return PromptTemplate{}, err
	}
	return tmpl, nil
}

// ActiveVersions returns up to limit active versions of name, newest first.
func (r *PGRepo) ActiveVersions(ctx context.Context, name string, limit int) ([]PromptTemplate, error) {
	if limit <= 0 {
		limit = 2
	}
	const query = `
SELECT name, version, body, default_options, active, ab_testing, created_at, updated_at
FROM prompt_templates
WHERE name = $1 AND active = true
ORDER BY version DESC
LIMIT $2`

	rows, err := r.DB.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PromptTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tmpl)
	}
	return out, rows.Err()
}

// SetStatus updates the active/abTesting flags for one version.
func (r *PGRepo) SetStatus(ctx context.Context, name string, version int, update StatusUpdate) error {
	const query = `
UPDATE prompt_templates
SET active = COALESCE($1::boolean, active),
    ab_testing = COALESCE($2::boolean, ab_testing),
    updated_at = now()
WHERE name = $3 AND version = $4`

	res, err := r.DB.ExecContext(ctx, query, update.Active, update.ABTesting, name, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (PromptTemplate, error) {
	var tmpl PromptTemplate
	var options sql.NullString
	if err := row.Scan(
		&tmpl.Name,
		&tmpl.Version,
		&tmpl.Body,
		&options,
		&tmpl.Active,
		&tmpl.ABTesting,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	); err != nil {
		return PromptTemplate{}, err
	}
	if options.Valid {
		if err := json.Unmarshal([]byte(options.String), &tmpl.DefaultOptions); err != nil {
			tmpl.DefaultOptions = nil
		}
	}
	return tmpl, nil
}

func marshalJSONB(value map[string]any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(value)
}

var _ Repo = (*PGRepo)(nil)
