package services

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sjperalta/interlock-api/internal/logparser"
	"github.com/sjperalta/interlock-api/internal/statemachine"
	"github.com/sjperalta/interlock-api/internal/storage"
	"gorm.io/gorm"
)

// Common service errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = statemachine.ErrInvalidTransition
	ErrPermissionDenied  = errors.New("permission denied")
	ErrMalformedInput    = logparser.ErrMalformedInput
	ErrDuplicate         = errors.New("duplicate record")
)

// notFound translates store-level misses into ErrNotFound
func notFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, storage.ErrBlobNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return err
}

// invalid wraps a validation failure as ErrInvalidInput
func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on %s", ErrInvalidInput, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
