// Package apierr maps domain and storage errors onto HTTP errors.
package apierr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/validation"
)

var (
	// ErrForbidden is returned by services when the caller may not touch a record.
	ErrForbidden = errors.New("you do not have permission to perform this action")
	// ErrUnauthorized is returned for bad credentials.
	ErrUnauthorized = errors.New("invalid credentials")
	// ErrInvalidTransition is returned for status changes the workflow does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

var conflictMessages = map[string]string{}

// RegisterConflict sets the 409 message for a unique constraint. Domain
// packages call it from init.
func RegisterConflict(constraint, msg string) {
	conflictMessages[constraint] = msg
}

// From converts err into an *echo.HTTPError. Validation errors keep their
// field map as the body.
func From(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	if ve, ok := validation.As(err); ok {
		return echo.NewHTTPError(http.StatusBadRequest, ve)
	}

	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, db.ErrConflict):
		if msg, ok := conflictMessages[db.ConstraintName(err)]; ok {
			return echo.NewHTTPError(http.StatusConflict, msg)
		}
		return echo.NewHTTPError(http.StatusConflict, "a record with these values already exists")
	case errors.Is(err, db.ErrReference):
		return echo.NewHTTPError(http.StatusBadRequest, "referenced record does not exist")
	case errors.Is(err, db.ErrCheck):
		return echo.NewHTTPError(http.StatusBadRequest, "value violates a database constraint")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnauthorized.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

// ErrorHandler renders errors the way the frontend expects: a field map for
// validation failures, {"message": ...} otherwise. Internal errors are
// logged by the Logger middleware and never echoed to the client.
func ErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		he := From(err).(*echo.HTTPError)

		var body interface{}
		switch m := he.Message.(type) {
		case validation.Errors:
			body = m
		case string:
			body = map[string]string{"message": m}
		default:
			body = map[string]interface{}{"message": m}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			e.Logger.Error(err)
		}
	}
}
