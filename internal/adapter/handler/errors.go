package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/core/service"
)

var errBadPatch = errors.New("patch does not match the record")

type errorClass int

const (
	classInternal errorClass = iota
	classInvalid
	classUnauthenticated
	classForbidden
	classNotFound
	classConflict
)

var errorClasses = []struct {
	class errorClass
	errs  []error
}{
	{classInvalid, []error{
		domain.ErrMissingName, domain.ErrMissingTitle, domain.ErrMissingDestination,
		domain.ErrInvalidQuantity, domain.ErrExceedsAvailable, domain.ErrInvalidPrice,
		domain.ErrQuantityPrecision, domain.ErrPricePrecision,
		domain.ErrInvalidDistance, domain.ErrInvalidSchedule, domain.ErrInvalidKind,
		domain.ErrInvalidEmail, domain.ErrWeakPassword, domain.ErrMissingFarm,
		domain.ErrInvalidCarrierRate, domain.ErrInvalidCapacity, domain.ErrUnknownRole,
		service.ErrInvalidAction, errBadPatch,
	}},
	{classUnauthenticated, []error{service.ErrInvalidCredentials, service.ErrNoSession}},
	{classForbidden, []error{service.ErrForbidden, service.ErrNotListingOwner, service.ErrNotOrderOwner}},
	{classNotFound, []error{service.ErrListingNotFound, service.ErrShipmentNotFound, service.ErrRecordNotFound}},
	{classConflict, []error{
		service.ErrDuplicateRequest, service.ErrEmailTaken, service.ErrListingUnavailable,
		service.ErrShipmentTaken, service.ErrConcurrentUpdate,
		domain.ErrListingSold, domain.ErrInvalidTransition,
	}},
}

func classify(err error) errorClass {
	for _, c := range errorClasses {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.class
			}
		}
	}
	return classInternal
}

func httpStatus(err error) int {
	switch classify(err) {
	case classInvalid:
		return http.StatusBadRequest
	case classUnauthenticated:
		return http.StatusUnauthorized
	case classForbidden:
		return http.StatusForbidden
	case classNotFound:
		return http.StatusNotFound
	case classConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func grpcCode(err error) codes.Code {
	switch classify(err) {
	case classInvalid:
		return codes.InvalidArgument
	case classUnauthenticated:
		return codes.Unauthenticated
	case classForbidden:
		return codes.PermissionDenied
	case classNotFound:
		return codes.NotFound
	case classConflict:
		return codes.FailedPrecondition
	}
	return codes.Internal
}

// publicMessage hides internal failures from callers.
func publicMessage(err error) string {
	if classify(err) == classInternal {
		return "internal error"
	}
	return err.Error()
}
