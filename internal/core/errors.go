package core

import "errors"

// Sentinel errors for the failure modes callers need to distinguish.
// Everything else is wrapped with fmt.Errorf and surfaced generically.
var (
	// ErrSourceNotFound means the corpus file is missing. Fatal to the
	// indexing operation, reported to the caller as "not found".
	ErrSourceNotFound = errors.New("corpus source not found")

	// ErrIndexProvisioning means index creation exhausted its retries.
	ErrIndexProvisioning = errors.New("index provisioning failed")

	// ErrValidation marks caller mistakes: vector dimension mismatch or
	// mismatched batch lengths.
	ErrValidation = errors.New("validation error")
)
