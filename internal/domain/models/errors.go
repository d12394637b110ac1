package models

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching across the taxonomy.
var (
	ErrInvalidState        = errors.New("invalid state")
	ErrStateShape          = errors.New("state shape mismatch")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrConfiguration       = errors.New("configuration error")
	ErrInvalidAction       = errors.New("invalid action")
	ErrInvalidFeed         = errors.New("invalid market feed")
	ErrMissingProvider     = errors.New("provider missing")
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
)

// InvalidStateError is returned when an operation is not allowed in the current phase
// (step after termination, step before reset, step after a failed step).
type InvalidStateError struct {
	Op    string
	Phase string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed in phase %s", e.Op, e.Phase)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// StateShapeError reports a state vector whose length differs from what a provider was built for.
type StateShapeError struct {
	Provider string
	Want     int
	Got      int
}

func (e *StateShapeError) Error() string {
	return fmt.Sprintf("provider %s expects state of length %d, got %d", e.Provider, e.Want, e.Got)
}

func (e *StateShapeError) Is(target error) bool { return target == ErrStateShape }

// ProviderUnavailableError reports a missing or failing ensemble member.
type ProviderUnavailableError struct {
	CoarseAction int
	Slot         int
	Provider     string
	Err          error
}

func (e *ProviderUnavailableError) Error() string {
	name := e.Provider
	if name == "" {
		name = "<missing>"
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s (action %d, slot %d) unavailable: %v", name, e.CoarseAction, e.Slot, e.Err)
	}
	return fmt.Sprintf("provider %s (action %d, slot %d) unavailable", name, e.CoarseAction, e.Slot)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

func (e *ProviderUnavailableError) Is(target error) bool { return target == ErrProviderUnavailable }

// ConfigurationError reports an unusable evaluation setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(field, format string, a ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// EpisodeError ties a fatal episode error to the split and macro step that raised it.
type EpisodeError struct {
	Split string
	Step  int
	Err   error
}

func (e *EpisodeError) Error() string {
	return fmt.Sprintf("split %s, step %d: %v", e.Split, e.Step, e.Err)
}

func (e *EpisodeError) Unwrap() error { return e.Err }
