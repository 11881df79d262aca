package statemachine

import "errors"

// ErrInvalidTransition is returned when an event is not allowed from the current state
var ErrInvalidTransition = errors.New("invalid state transition")
