package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// ErrorCategory classifies failures so retry policy can dispatch on kind
type ErrorCategory string

const (
	// Retryable
	ErrorCategoryTransient ErrorCategory = "TRANSIENT"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"

	// Surfaced immediately, never retried
	ErrorCategoryBusiness ErrorCategory = "BUSINESS"

	// Handled by dedicated procedures
	ErrorCategoryDisconnected ErrorCategory = "DISCONNECTED"
	ErrorCategoryTimeout      ErrorCategory = "TIMEOUT"

	// Stop the bot
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"
	ErrorCategoryFatal         ErrorCategory = "FATAL"
)

// Business error sentinels. Exchange adapters wrap them in a BotError so
// errors.Is works through Unwrap.
var (
	ErrInsufficientBalance = stderrors.New("insufficient balance")
	ErrInvalidOrder        = stderrors.New("invalid order parameters")
	ErrBelowMinimum        = stderrors.New("order below minimum size")
	ErrOrderNotFound       = stderrors.New("order not found")
	ErrDuplicateOrder      = stderrors.New("duplicate client order id")
)

// BotError represents a categorized error with context
type BotError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Code       int
	Underlying error
}

// Error implements the error interface
func (e *BotError) Error() string {
	msg := e.Message
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, msg, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, msg)
}

// Unwrap returns the underlying error for error unwrapping
func (e *BotError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether the retry loop may try again
func (e *BotError) IsRetryable() bool {
	return e.Category == ErrorCategoryTransient || e.Category == ErrorCategoryRateLimit
}

// IsFatal returns whether this error should stop the bot
func (e *BotError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryCredentials ||
		e.Category == ErrorCategoryConfiguration
}

// NewBotError creates a new categorized bot error
func NewBotError(category ErrorCategory, component, operation, message string) *BotError {
	return &BotError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// WrapError wraps an existing error with bot error context
func WrapError(err error, category ErrorCategory, component, operation string) *BotError {
	if err == nil {
		return nil
	}
	return &BotError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// NewBusinessError wraps a business sentinel with the exchange's code and message
func NewBusinessError(sentinel error, component, operation string, code int, message string) *BotError {
	return &BotError{
		Category:   ErrorCategoryBusiness,
		Component:  component,
		Operation:  operation,
		Message:    message,
		Code:       code,
		Underlying: sentinel,
	}
}

// CategoryOf returns the category of err. Typed errors win; context and
// net errors are recognised structurally; anything else is transient.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	var be *BotError
	if stderrors.As(err, &be) {
		return be.Category
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	if stderrors.Is(err, context.Canceled) {
		return ErrorCategoryFatal
	}
	for _, sentinel := range []error{ErrInsufficientBalance, ErrInvalidOrder, ErrBelowMinimum, ErrOrderNotFound, ErrDuplicateOrder} {
		if stderrors.Is(err, sentinel) {
			return ErrorCategoryBusiness
		}
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return ErrorCategoryTimeout
	}
	return ErrorCategoryTransient
}

// CategorizeError returns err as a BotError, wrapping it when needed
func CategorizeError(err error, component, operation string) *BotError {
	if err == nil {
		return nil
	}
	var be *BotError
	if stderrors.As(err, &be) {
		return be
	}
	return WrapError(err, CategoryOf(err), component, operation)
}

// RecoveryAction tells a caller what to do with a failed call
type RecoveryAction string

const (
	RecoveryActionRetry     RecoveryAction = "RETRY"
	RecoveryActionWait      RecoveryAction = "WAIT"
	RecoveryActionSkip      RecoveryAction = "SKIP"
	RecoveryActionReconcile RecoveryAction = "RECONCILE"
	RecoveryActionReconnect RecoveryAction = "RECONNECT"
	RecoveryActionStop      RecoveryAction = "STOP"
)

// GetRecoveryAction maps a category onto the handling procedure
func GetRecoveryAction(category ErrorCategory) RecoveryAction {
	switch category {
	case ErrorCategoryTransient:
		return RecoveryActionRetry
	case ErrorCategoryRateLimit:
		return RecoveryActionWait
	case ErrorCategoryBusiness:
		return RecoveryActionSkip
	case ErrorCategoryTimeout:
		return RecoveryActionReconcile
	case ErrorCategoryDisconnected:
		return RecoveryActionReconnect
	default:
		return RecoveryActionStop
	}
}

// GetRecoveryAction suggests a recovery action based on error category
func (e *BotError) GetRecoveryAction() RecoveryAction {
	return GetRecoveryAction(e.Category)
}
