/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Case and Chat Business Logic Errors
	ErrCaseNotFound:          {Code: ErrCaseNotFound, Message: "Case not found", Status: http.StatusNotFound},
	ErrCaseAccessDenied:      {Code: ErrCaseAccessDenied, Message: "You do not have access to this case chat", Status: http.StatusForbidden},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrMessageKindInvalid:    {Code: ErrMessageKindInvalid, Message: "Unsupported message type."},
	ErrMessageSendFailed:     {Code: ErrMessageSendFailed, Message: "failed to send message"},
	ErrRoomJoinFailed:        {Code: ErrRoomJoinFailed, Message: "Failed to join chat room"},

	// 3xxx: User, Session, and Security Errors
	ErrUnauthorized: {Code: ErrUnauthorized, Message: "Authentication error", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
