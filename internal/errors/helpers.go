package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewGatewayError creates an error for a failed WhatsApp gateway call.
// Server-side and throttling statuses are retryable.
func NewGatewayError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeWhatsAppGateway, "gateway call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}
	return appErr
}

// NewBotAPIError creates an error for a failed Telegram Bot API call
func NewBotAPIError(method string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeTelegramAPI, "bot api call failed").
		WithContext("method", method).
		WithContext("status_code", statusCode)

	if statusCode >= 500 || statusCode == 429 {
		appErr.Retryable = true
	}
	return appErr
}
