package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeForbidden              = "forbidden"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeInvalidChatID    = "invalid_chat_id"

	// Quiz errors
	ErrCodeAlreadyRunning = "already_running"
	ErrCodeNothingToStop  = "nothing_to_stop"
	ErrCodeNoQuestions    = "no_questions"
	ErrCodeDispatchFailed = "dispatch_failed"

	// Server errors
	ErrCodeInternalError   = "internal_error"
	ErrCodeFeedUnavailable = "feed_unavailable"
)
