// Package errors provides standardized error handling for the analysis pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeLLMRateLimited    ErrorCode = "LLM_RATE_LIMITED"
	ErrCodeLLMTimeout        ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMRequestFailed  ErrorCode = "LLM_REQUEST_FAILED"

	ErrCodePlanningFailed   ErrorCode = "PLANNING_FAILED"
	ErrCodeReflectionFailed ErrorCode = "REFLECTION_FAILED"
	ErrCodeSynthesisFailed  ErrorCode = "SYNTHESIS_FAILED"

	ErrCodeSQLRejected        ErrorCode = "SQL_REJECTED"
	ErrCodeSQLExecutionFailed ErrorCode = "SQL_EXECUTION_FAILED"

	ErrCodeDatasetLoadFailed  ErrorCode = "DATASET_LOAD_FAILED"
	ErrCodeConfigInvalid      ErrorCode = "CONFIG_INVALID"
	ErrCodeHistoryWriteFailed ErrorCode = "HISTORY_WRITE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewRateLimitedError creates a retryable rate-limit error.
func NewRateLimitedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMRateLimited,
		Message:   "Chat completion API rate limited the request",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(stage string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "Chat completion call exceeded timeout threshold",
		Details:   fmt.Sprintf("stage: %s", stage),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMRequestFailedError creates a retryable request error.
func NewLLMRequestFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMRequestFailed,
		Message:   "Chat completion API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPlanningFailedError creates a retryable planning stage error.
func NewPlanningFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePlanningFailed,
		Message:   "Query decomposition failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewReflectionFailedError creates a retryable reflection stage error.
func NewReflectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeReflectionFailed,
		Message:   "Completeness reflection failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSynthesisFailedError creates a retryable synthesis stage error.
func NewSynthesisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSynthesisFailed,
		Message:   "Final synthesis failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSQLRejectedError creates a non-retryable SQL guard error.
func NewSQLRejectedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSQLRejected,
		Message:   "Generated SQL rejected by the read-only guard",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSQLExecutionFailedError creates a retryable query execution error.
func NewSQLExecutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSQLExecutionFailed,
		Message:   "Dataset query execution error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatasetLoadFailedError creates a non-retryable dataset load error.
func NewDatasetLoadFailedError(path string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatasetLoadFailed,
		Message:   "Dataset could not be loaded",
		Details:   fmt.Sprintf("path: %s, error: %s", path, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigInvalidError creates a non-retryable configuration error.
func NewConfigInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigInvalid,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewHistoryWriteFailedError creates a retryable run-store error.
func NewHistoryWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeHistoryWriteFailed,
		Message:   "Failed to persist analysis run",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeLLMRateLimited,
		ErrCodeLLMRequestFailed:
		return 3 // Retryable technical errors

	case ErrCodePlanningFailed,
		ErrCodeReflectionFailed,
		ErrCodeSynthesisFailed,
		ErrCodeSQLExecutionFailed,
		ErrCodeHistoryWriteFailed:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0 // Guard and configuration errors: no retry
	}
}

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "LLM"):
		return "LLM"
	case strings.Contains(codeStr, "SQL") || strings.Contains(codeStr, "DATASET"):
		return "DATASET"
	case strings.Contains(codeStr, "PLANNING") || strings.Contains(codeStr, "REFLECTION") || strings.Contains(codeStr, "SYNTHESIS"):
		return "STAGE"
	case strings.Contains(codeStr, "HISTORY"):
		return "HISTORY"
	case strings.Contains(codeStr, "CONFIG"):
		return "CONFIG"
	default:
		return "OTHER"
	}
}
