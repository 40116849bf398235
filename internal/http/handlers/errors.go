package handlers

// Error codes carried in ErrorResponse.Code. Generic codes mirror the HTTP
// status; the rest name a specific condition clients react to.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"

	ErrCodeRoleAlreadySet = "role_already_set"
	ErrCodeAlreadyRead    = "already_read"
	ErrCodeAIUnavailable  = "ai_unavailable"
	ErrCodeCreateFailed   = "create_failed"
	ErrCodeListFailed     = "list_failed"
	ErrCodeUpdateFailed   = "update_failed"
	ErrCodeExportFailed   = "export_failed"
)
