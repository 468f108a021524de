package youtubeapi

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// ErrInvalidURL indicates the supplied stream URL matched none of the accepted shapes.
var ErrInvalidURL = errors.New("unrecognized stream url")

// ErrNotLive indicates the video exists but has no active live chat.
var ErrNotLive = errors.New("video is not currently live")

// AuthError is a platform response indicating the active credential lacks
// validity or privilege (401/403). The orchestrator treats these differently
// from transport failures: on action calls they update moderator-authority
// state instead of aborting the cycle.
type AuthError struct {
	Status int
	Msg    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("platform auth error (%d): %s", e.Status, e.Msg)
}

// TransportError is any non-auth API failure: network trouble, 5xx, rate
// limiting, malformed responses.
type TransportError struct {
	Status int
	Msg    string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return "platform transport error: " + e.Msg
	}
	return fmt.Sprintf("platform transport error (%d): %s", e.Status, e.Msg)
}

// IsAuthError reports whether err is (or wraps) an authorization failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// classifyAPIError maps a raw google API client error onto the package's typed
// errors by response status.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 401, 403:
			return &AuthError{Status: gerr.Code, Msg: gerr.Message}
		default:
			return &TransportError{Status: gerr.Code, Msg: gerr.Message}
		}
	}
	return &TransportError{Msg: err.Error()}
}
