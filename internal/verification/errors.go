package verification

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyProcessed  = errors.New("verification already processed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("actor is not allowed to review verifications")
	ErrMemberNotFound    = errors.New("target member not found")
	ErrNoJustification   = errors.New("no justification given")
	ErrNoDestination     = errors.New("review destination unavailable")
	ErrCooldown          = errors.New("verification requested too recently")
)

// CooldownError carries the wait left before a new request is accepted.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v: retry in %s", ErrCooldown, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}
