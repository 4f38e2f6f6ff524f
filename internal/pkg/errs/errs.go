package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"roomchat/internal/pkg/logx"
)

// CustomError is the coded error used for HTTP-level rejections.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-friendly error description.
	Message string

	// Status is the HTTP status code sent with this error.
	Status int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError returns a *CustomError for code. For ErrUnknown and ErrStoreUnavailable a
// leading error in details is logged; for other codes details format the message template.
// Unknown codes fall back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	tmpl, ok := errorMap[code]
	if !ok {
		logx.Error(fmt.Errorf("unknown error code %d", code), "Unknown error code requested")
		tmpl = errorMap[ErrUnknown]
	}

	e := tmpl

	if len(details) == 0 {
		return &e
	}

	if cause, isErr := details[0].(error); isErr && e.Status >= http.StatusInternalServerError {
		logx.Error(cause, "Responding with internal error", "code", e.Code)
		return &e
	}

	if strings.Contains(e.Message, "%") {
		e.Message = fmt.Sprintf(e.Message, details...)
	} else {
		logx.Warn("Details provided for error without formatting placeholders, ignored", "code", e.Code)
	}

	return &e
}

// As extracts a *CustomError from err's chain.
func As(err error) (*CustomError, bool) {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
