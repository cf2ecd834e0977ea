package repository

import (
	"errors"
	"fmt"

	pulse_errors "pulsechat/pkg/errors"

	"gorm.io/gorm"
)

// storeErr maps driver failures into the domain taxonomy. Callers that
// care about not-found handle gorm.ErrRecordNotFound themselves before
// falling through here.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return pulse_errors.ErrAlreadyExists
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pulse_errors.ErrNotFound
	default:
		return fmt.Errorf("%w: %v", pulse_errors.ErrStoreUnavailable, err)
	}
}
