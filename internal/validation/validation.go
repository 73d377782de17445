package validation

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"watgbridge/internal/constants"
	"watgbridge/internal/errors"
)

// ValidatePhoneNumber validates phone number format and length. Accepts
// bare numbers, a leading +, and full JIDs.
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")
	cleaned = strings.TrimSuffix(cleaned, constants.UserJIDSuffix)
	cleaned = strings.TrimSuffix(cleaned, constants.GroupJIDSuffix)

	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.NewValidationError("phone", phone,
			fmt.Sprintf("must be at least %d digits", constants.MinPhoneNumberLength))
	}
	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.NewValidationError("phone", phone,
			fmt.Sprintf("too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.NewValidationError("phone", phone, "must contain only digits")
		}
	}
	return nil
}

// ValidateJID validates a WhatsApp JID: numeric local part plus a known
// domain suffix. The status and call pseudo-chats are always valid.
func ValidateJID(jid string) error {
	if jid == "" {
		return errors.New(errors.ErrCodeInvalidInput, "jid cannot be empty")
	}
	if jid == constants.StatusBroadcastJID || jid == constants.CallBroadcastJID {
		return nil
	}

	var local string
	switch {
	case strings.HasSuffix(jid, constants.UserJIDSuffix):
		local = strings.TrimSuffix(jid, constants.UserJIDSuffix)
	case strings.HasSuffix(jid, constants.GroupJIDSuffix):
		local = strings.TrimSuffix(jid, constants.GroupJIDSuffix)
	default:
		return errors.New(errors.ErrCodeInvalidInput, "jid has unknown domain suffix")
	}

	if local == "" {
		return errors.New(errors.ErrCodeInvalidInput, "jid has empty local part")
	}
	// Group IDs may carry a hyphenated epoch component.
	for _, char := range local {
		if !unicode.IsDigit(char) && char != '-' {
			return errors.New(errors.ErrCodeInvalidInput, "jid local part must be numeric")
		}
	}
	return nil
}

// ValidateMessageID validates message ID format and length
func ValidateMessageID(messageID string) error {
	if messageID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message ID cannot be empty")
	}
	if len(messageID) > constants.MaxMessageIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message ID too long (max %d characters)", constants.MaxMessageIDLength))
	}
	if strings.ContainsAny(messageID, "\x00\n\r\t") {
		return errors.New(errors.ErrCodeInvalidInput, "message ID contains invalid characters")
	}
	return nil
}

// ValidateSessionName validates session name format and length
func ValidateSessionName(sessionName string) error {
	if sessionName == "" {
		return errors.New(errors.ErrCodeInvalidInput, "session name cannot be empty")
	}
	if len(sessionName) > constants.MaxSessionNameLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("session name too long (max %d characters)", constants.MaxSessionNameLength))
	}
	for _, char := range sessionName {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return errors.New(errors.ErrCodeInvalidInput,
				"session name must contain only letters, numbers, underscores, and dashes")
		}
	}
	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid content length")
	}
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}
	return nil
}

// ValidateRetentionDays validates the staged-media retention period
func ValidateRetentionDays(days int) error {
	if days < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days must be at least 1")
	}
	if days > 3650 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days too large (max 3650)")
	}
	return nil
}
