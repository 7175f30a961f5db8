package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cartd/internal/backend"
	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/fault"
)

// apiError is the mapped form of a domain error.
type apiError struct {
	status  int
	kind    string
	message string
	// conflict is set for restaurant conflicts.
	conflict *cart.RestaurantConflictError
}

func classify(err error) apiError {
	var conflict *cart.RestaurantConflictError
	if errors.As(err, &conflict) {
		return apiError{
			status:   http.StatusConflict,
			kind:     "restaurant_conflict",
			message:  conflict.Error(),
			conflict: conflict,
		}
	}

	var status *backend.StatusError
	if errors.As(err, &status) && (status.Code == http.StatusUnauthorized || status.Code == http.StatusForbidden) {
		return apiError{status: status.Code, kind: "unauthorized", message: fault.Message(err)}
	}

	switch {
	case errors.Is(err, fault.ErrValidation):
		return apiError{status: http.StatusBadRequest, kind: "validation", message: fault.Message(err)}
	case errors.Is(err, fault.ErrNotFound):
		return apiError{status: http.StatusNotFound, kind: "not_found", message: fault.Message(err)}
	case errors.Is(err, fault.ErrConflict):
		return apiError{status: http.StatusConflict, kind: "conflict", message: fault.Message(err)}
	case errors.Is(err, fault.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return apiError{status: http.StatusGatewayTimeout, kind: "timeout", message: "backend timed out"}
	case errors.Is(err, fault.ErrTransient):
		return apiError{status: http.StatusBadGateway, kind: "unavailable", message: "backend unavailable"}
	default:
		return apiError{status: http.StatusInternalServerError, kind: "internal", message: "internal error"}
	}
}

// writeError maps err to a status and writes the error body.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ae := classify(err)
	lg := zctx.From(ctx)
	if ae.status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", ae.status), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", ae.status), zap.Error(err))
	}

	writeJSON(w, ae.status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(ae.status)
		e.FieldStart("kind")
		e.Str(ae.kind)
		e.FieldStart("message")
		e.Str(ae.message)
		if ae.conflict != nil {
			e.FieldStart("currentRestaurantId")
			e.Str(ae.conflict.Current)
			e.FieldStart("requestedRestaurantId")
			e.Str(ae.conflict.Requested)
		}
		e.ObjEnd()
	})
}
