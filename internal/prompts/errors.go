package prompts

import "errors"

var (
	ErrNotFound      = errors.New("prompt template not found")
	ErrAlreadyExists = errors.New("prompt template already exists")
)
