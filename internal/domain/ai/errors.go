package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrBadModelOutput means the provider answered but the reply could not be
// read as a commentary draft.
var ErrBadModelOutput = errors.New("ai returned unreadable output")
