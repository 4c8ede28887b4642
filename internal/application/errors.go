package application

import (
	stderrors "errors"
	"fmt"

	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/errors"
)

// ErrTransport is returned when events could not be handed to the event bus after the
// invoice was saved. The saved state is not rolled back.
var ErrTransport = stderrors.New("event transport failure")

// mapError wraps domain and port errors in an AppError carrying the HTTP status.
// The original error stays reachable through errors.Is.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}

	switch {
	case stderrors.Is(err, domain.ErrValidation), stderrors.Is(err, domain.ErrIndexOutOfRange):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrInvalidTransition):
		return errors.ErrInvalidTransition(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrConcurrentModification):
		return errors.ErrConcurrentModification("invoice").Wrap(err)
	case stderrors.Is(err, ErrTransport):
		return errors.ErrServiceUnavailable("event bus").Wrap(err)
	default:
		return errors.ErrInternal("").Wrap(err)
	}
}

func transportError(err error) error {
	return mapError(fmt.Errorf("%w: %w", ErrTransport, err))
}

func notFound(invoiceID string) error {
	return errors.ErrNotFoundWithID("invoice", invoiceID)
}
