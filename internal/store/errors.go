package store

import (
	"errors"

	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
)

// Translate converts a store error into a domain error. Errors that already
// carry a domain code pass through unchanged.
func Translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
