/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002
)

// 2xxx: Case and Chat Business Logic Errors
const (
	// ErrCaseNotFound indicates that the referenced case does not exist.
	ErrCaseNotFound = 2101

	// ErrCaseAccessDenied indicates that the authenticated user is neither the case's
	// client owner, its assigned lawyer, nor an admin.
	ErrCaseAccessDenied = 2102

	// ErrMessageContentTooLong indicates that the message body exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageKindInvalid indicates that an unsupported chat message type was submitted.
	ErrMessageKindInvalid = 2202

	// ErrMessageSendFailed indicates that a chat message could not be processed due to
	// an upstream lookup failure.
	ErrMessageSendFailed = 2203

	// ErrRoomJoinFailed indicates that joining a case chat room failed due to an
	// upstream lookup failure.
	ErrRoomJoinFailed = 2204
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates a missing, invalid, or expired authentication token.
	ErrUnauthorized = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
