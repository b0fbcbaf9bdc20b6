package lessons

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrNoResult = errors.New("no analysis result")
)

const (
	ErrorCodeValidation      = "VALIDATION_ERROR"
	ErrorCodeTemplateMissing = "TEMPLATE_MISSING"
	ErrorCodeProviderTimeout = "PROVIDER_TIMEOUT"
	ErrorCodeProviderFailed  = "PROVIDER_FAILED"
	ErrorCodeStorage         = "STORAGE_ERROR"
	ErrorCodeInternal        = "INTERNAL_ERROR"
)
