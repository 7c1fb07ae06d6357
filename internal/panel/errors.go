package panel

import (
	"errors"
	"fmt"
)

// errSessionExpired marks a 401-class response; handled internally by
// the client's single re-auth retry and never surfaced alone.
var errSessionExpired = errors.New("panel session expired")

// ErrClientMissing reports that the remote client no longer exists.
// Delete paths treat it as success.
var ErrClientMissing = errors.New("client not found on panel")

// APIError is a request the panel received and declined. It crosses the
// orchestration boundary as a value so callers can decide
// recoverable-vs-fatal per call.
type APIError struct {
	Msg string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return "panel request failed"
	}
	return "panel request failed: " + e.Msg
}

// UnreachableError reports total unreachability of the panel(s). Backup
// is nil when no backup panel is configured.
type UnreachableError struct {
	Primary error
	Backup  error
}

func (e *UnreachableError) Error() string {
	if e.Backup != nil {
		return fmt.Sprintf("both panels failed. primary: %v. backup: %v", e.Primary, e.Backup)
	}
	return fmt.Sprintf("panel unreachable: %v", e.Primary)
}

func (e *UnreachableError) Unwrap() error { return e.Primary }
