/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific request, session and system failures both inside
the server and in the JSON envelopes returned to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUpgradeRequired indicates a plain HTTP request reached the realtime endpoint.
	ErrUpgradeRequired = 1008
)

// 3xxx: Session and Security Errors
const (
	// ErrUnauthorized indicates the session cookie is missing, malformed or expired.
	ErrUnauthorized = 3001

	// ErrOriginNotAllowed indicates the websocket Origin header is not in the allow list.
	ErrOriginNotAllowed = 3002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates the session or user store could not be reached.
	ErrStoreUnavailable = 5001
)
