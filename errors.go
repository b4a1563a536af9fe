package vectorflow

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("vectorflow: no store configured")
	ErrStoreClosed     = errors.New("vectorflow: store closed")
	ErrMigrationFailed = errors.New("vectorflow: migration failed")

	// Not found errors.
	ErrJobNotFound      = errors.New("vectorflow: job not found")
	ErrWorkflowNotFound = errors.New("vectorflow: workflow not found")
	ErrRunNotFound      = errors.New("vectorflow: run not found")
	ErrKeyNotFound      = errors.New("vectorflow: key not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("vectorflow: job already exists")
	ErrRunAlreadyExists = errors.New("vectorflow: run already exists")

	// State errors.
	ErrInvalidState = errors.New("vectorflow: invalid state transition")

	// Request errors.
	ErrValidation = errors.New("vectorflow: validation failed")
)

// ValidationError reports a request that failed schema or semantic
// validation. Validation happens before a job is registered, so a
// ValidationError never has a job record behind it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// CriticalStepError aborts a workflow run after a critical step exhausted
// its retries.
type CriticalStepError struct {
	Step string
	Err  error
}

func (e *CriticalStepError) Error() string {
	if e.Err == nil {
		return "critical step failed: " + e.Step
	}
	return fmt.Sprintf("critical step failed: %s: %v", e.Step, e.Err)
}

func (e *CriticalStepError) Unwrap() error { return e.Err }
