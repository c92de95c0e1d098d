// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP status semantics, the rest name pipeline outcomes that a
// status alone cannot convey (e.g. quota_exceeded vs please_wait).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "quota_exceeded",
//	  "message": "usage quota exceeded",
//	  "notices": [{"kind": "quota_exceeded", "title": "Usage limit reached", "message": "..."}]
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_error"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"

	// Pipeline outcomes:
	ErrCodeQuotaExceeded = "quota_exceeded"
	ErrCodePleaseWait    = "please_wait"
	ErrCodeInProgress    = "analysis_in_progress"
	ErrCodeAnalysisFail  = "analysis_failed"

	// Accounts:
	ErrCodeEmailTaken = "email_taken"
	ErrCodeSamePlan   = "same_plan"
)
