package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches failures that retrying cannot fix: bad
	// credentials, unknown model, malformed request or invalid options.
	ErrConfiguration = errors.New("agent: configuration failure")

	// ErrGeneration matches a turn that could not produce a response after
	// the retry policy gave up or the caller cancelled.
	ErrGeneration = errors.New("agent: generation failure")
)

// ConfigurationError is returned on the first non-transient failure.
type ConfigurationError struct {
	Agent string
	Model string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("agent %s (%s): configuration failure: %v", e.Agent, e.Model, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// GenerationError is returned when retries are exhausted.
type GenerationError struct {
	Agent    string
	Model    string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("agent %s (%s): generation failed after %d attempt(s): %v", e.Agent, e.Model, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
