package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyCompletion indicates the provider answered without any text content.
var ErrEmptyCompletion = errors.New("ai returned empty completion")

// ErrNoClient indicates no client is configured for the requested model class.
var ErrNoClient = errors.New("no ai client for model class")
