package validation

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"queuesync/internal/constants"
	"queuesync/internal/errors"
)

// ValidateServiceType trims the label and rejects empty, overlong or
// non-printable values. It returns the trimmed label.
func ValidateServiceType(serviceType string) (string, error) {
	trimmed := strings.TrimSpace(serviceType)
	if trimmed == "" {
		return "", errors.NewValidationError("serviceType", serviceType, "service type cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > constants.MaxServiceTypeLength {
		return "", errors.NewValidationError("serviceType", trimmed,
			fmt.Sprintf("service type too long (max %d characters)", constants.MaxServiceTypeLength))
	}
	for _, r := range trimmed {
		if !unicode.IsPrint(r) {
			return "", errors.NewValidationError("serviceType", trimmed, "service type contains invalid characters")
		}
	}
	return trimmed, nil
}

// ValidateEstimatedDuration requires a positive duration of at most one day.
func ValidateEstimatedDuration(minutes int) error {
	if minutes <= 0 {
		return errors.NewValidationError("estimatedDurationMinutes", strconv.Itoa(minutes), "estimated duration must be positive")
	}
	if minutes > constants.MaxEstimatedMinutes {
		return errors.NewValidationError("estimatedDurationMinutes", strconv.Itoa(minutes),
			fmt.Sprintf("estimated duration too large (max %d minutes)", constants.MaxEstimatedMinutes))
	}
	return nil
}

// ValidateActualDuration accepts zero (walk-out) and anything up to a day.
func ValidateActualDuration(minutes int) error {
	if minutes < 0 {
		return errors.NewValidationError("actualDurationMinutes", strconv.Itoa(minutes), "actual duration cannot be negative")
	}
	if minutes > constants.MaxEstimatedMinutes {
		return errors.NewValidationError("actualDurationMinutes", strconv.Itoa(minutes),
			fmt.Sprintf("actual duration too large (max %d minutes)", constants.MaxEstimatedMinutes))
	}
	return nil
}

// ValidateUserID checks a chat user id: non-empty, bounded and free of
// control characters.
func ValidateUserID(userID string) error {
	if userID == "" {
		return errors.NewValidationError("userId", userID, "user id cannot be empty")
	}
	if len(userID) > constants.MaxUserIDLength {
		return errors.NewValidationError("userId", userID[:16]+"...",
			fmt.Sprintf("user id too long (max %d bytes)", constants.MaxUserIDLength))
	}
	for _, r := range userID {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return errors.NewValidationError("userId", userID, "user id contains invalid characters")
		}
	}
	return nil
}

// ValidateChatBody rejects empty and oversized chat messages.
func ValidateChatBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.NewValidationError("message", "", "message cannot be empty")
	}
	if utf8.RuneCountInString(body) > constants.MaxChatMessageLength {
		return errors.NewValidationError("message", "",
			fmt.Sprintf("message too long (max %d characters)", constants.MaxChatMessageLength))
	}
	if !utf8.ValidString(body) {
		return errors.NewValidationError("message", "", "message is not valid UTF-8")
	}
	return nil
}

// ValidateDay parses a 2006-01-02 date.
func ValidateDay(day string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return time.Time{}, errors.NewValidationError("date", day, "date must be formatted as YYYY-MM-DD")
	}
	return t, nil
}

// ValidateEntryID parses a positive queue entry id from a path segment.
func ValidateEntryID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError("id", raw, "id must be a positive integer")
	}
	return id, nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}
	return nil
}
