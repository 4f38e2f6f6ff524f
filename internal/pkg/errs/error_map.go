package errs

import "net/http"

// errorMap holds the template for every known code.
var errorMap = map[int]CustomError{
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUpgradeRequired:   {Code: ErrUpgradeRequired, Message: "This endpoint only accepts websocket connections.", Status: http.StatusUpgradeRequired},

	ErrUnauthorized:     {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrOriginNotAllowed: {Code: ErrOriginNotAllowed, Message: "Origin %s is not allowed.", Status: http.StatusForbidden},

	ErrUnknown:          {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreUnavailable: {Code: ErrStoreUnavailable, Message: "Service temporarily unavailable.", Status: http.StatusServiceUnavailable},
}
