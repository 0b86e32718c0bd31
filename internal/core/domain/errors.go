package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("invalid configuration")
	ErrGateway          = errors.New("compute gateway error")
	ErrContextNotFound  = errors.New("compute context not found")
	ErrTableNotFound    = errors.New("table not found")
	ErrJobSubmission    = errors.New("job submission rejected")
	ErrPollTimeout      = errors.New("job still running after poll budget")
	ErrMissingSessionID = errors.New("missing session id")
	ErrMissingJobID     = errors.New("missing job id")
	ErrTableShape       = errors.New("table row length does not match columns")
	ErrWatchNotFound    = errors.New("no background watch for job")
	ErrWatchAborted     = errors.New("background watch ended before a terminal state")
)

// Stable error tags carried in response envelopes.
const (
	TagConfiguration    = "ConfigurationError"
	TagGateway          = "GatewayError"
	TagContextNotFound  = "ContextNotFound"
	TagTableNotFound    = "TableNotFound"
	TagJobSubmission    = "JobSubmissionError"
	TagPollTimeout      = "PollTimeout"
	TagMissingSessionID = "MissingSessionId"
	TagMissingJobID     = "MissingJobId"
	TagTableShape       = "TableShapeError"
	TagWatchNotFound    = "WatchNotFound"
	TagWatchAborted     = "WatchAborted"
)

// GatewayError carries the raw remote response for a failed remote call.
// Kind is one of the sentinels above and is what errors.Is matches against.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Kind       error
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	errs := []error{}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	} else {
		errs = append(errs, ErrGateway)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// RemoteMessage returns the raw engine payload when there is one.
func RemoteMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Body != "" {
		return gwErr.Body
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// ErrorTag maps an error onto its stable tag. Unknown errors are gateway errors.
func ErrorTag(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingSessionID):
		return TagMissingSessionID
	case errors.Is(err, ErrMissingJobID):
		return TagMissingJobID
	case errors.Is(err, ErrContextNotFound):
		return TagContextNotFound
	case errors.Is(err, ErrTableNotFound):
		return TagTableNotFound
	case errors.Is(err, ErrJobSubmission):
		return TagJobSubmission
	case errors.Is(err, ErrPollTimeout):
		return TagPollTimeout
	case errors.Is(err, ErrTableShape):
		return TagTableShape
	case errors.Is(err, ErrWatchNotFound):
		return TagWatchNotFound
	case errors.Is(err, ErrWatchAborted):
		return TagWatchAborted
	case errors.Is(err, ErrConfiguration):
		return TagConfiguration
	default:
		return TagGateway
	}
}
