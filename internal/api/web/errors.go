package web

import (
	"errors"
	"net/http"

	"github.com/dtroode/sheetkeeper/internal/model"
)

// statusFor maps a service error to an HTTP status and a message safe to show the client.
func statusFor(err error) (int, string) {
	var te *model.TransportError

	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, model.ErrUserExists):
		return http.StatusConflict, "username is already taken"
	case errors.Is(err, model.ErrRevisionConflict):
		return http.StatusServiceUnavailable, "the user table is busy, try again"
	case errors.Is(err, model.ErrReadOnly):
		return http.StatusServiceUnavailable, "the user table is read-only"
	case errors.Is(err, model.ErrMalformedTable):
		return http.StatusInternalServerError, "the stored user table is unreadable"
	case errors.As(err, &te):
		return http.StatusBadGateway, "the user table store is unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
