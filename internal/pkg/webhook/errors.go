package webhook

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidPayload is returned for bodies that are not JSON or lack a
	// field the event type requires.
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrMissingMeetingID = errors.New("missing meetingId")
	// ErrMeetingNotFound covers both an absent meeting and one whose status
	// does not allow the transition.
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrAgentNotFound   = errors.New("agent not found")
	// ErrDeliveryInProgress is returned for a redelivery that arrives while the
	// first attempt is still running. It must not be acknowledged.
	ErrDeliveryInProgress = errors.New("webhook delivery in progress")
)

// StatusCode maps a dispatch error to the HTTP status returned to the
// platform. Client errors stop redelivery; an in-flight duplicate gets 409 and
// everything else a 500, so the platform retries both.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrMissingMeetingID),
		errors.Is(err, ErrMeetingNotFound),
		errors.Is(err, ErrAgentNotFound):
		return http.StatusBadRequest
	case errors.Is(err, ErrDeliveryInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorMessage returns the client-facing message for err. Server errors are
// not echoed back.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingMeetingID):
		return "Missing meetingId"
	case errors.Is(err, ErrMeetingNotFound):
		return "Meeting not found"
	case errors.Is(err, ErrAgentNotFound):
		return "Agent not found"
	case errors.Is(err, ErrInvalidPayload):
		return "Invalid JSON"
	case errors.Is(err, ErrDeliveryInProgress):
		return "Delivery in progress"
	default:
		return "Internal server error"
	}
}
