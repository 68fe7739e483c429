package server

import (
	"errors"
	"net/http"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/core"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var invalidArgumentErrors = []error{
	core.ErrInvalidQuantity,
	core.ErrMissingPrice,
	core.ErrMissingTriggerPrice,
	core.ErrInvalidPrice,
	core.ErrInvalidSide,
	core.ErrInvalidOrderType,
	core.ErrSymbolMismatch,
	ErrInvalidSymbol,
}

func isInvalidArgument(err error) bool {
	if api.IsDecimalError(err) {
		return true
	}
	for _, target := range invalidArgumentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// httpStatus maps an engine or request error to a response code
func httpStatus(err error) int {
	switch {
	case isInvalidArgument(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownSymbol), errors.Is(err, core.ErrNonexistentOrder):
		return http.StatusNotFound
	case errors.Is(err, core.ErrOrderExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// grpcError maps an engine or request error to a status error
func grpcError(err error) error {
	switch {
	case isInvalidArgument(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrUnknownSymbol), errors.Is(err, core.ErrNonexistentOrder):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, core.ErrOrderExists):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}
