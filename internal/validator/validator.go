package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the validator library behind a single shared instance.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator. The underlying instance caches struct metadata,
// so one Validator should be reused rather than created per call.
func New() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// Struct validates s against its `validate` tags.
func (v *Validator) Struct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
