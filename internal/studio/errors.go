package studio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
)

type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindNetwork        ErrorKind = "network"
	KindSubmission     ErrorKind = "submission"
	KindUploadRejected ErrorKind = "upload_rejected"
	KindJobNotFound    ErrorKind = "job_not_found"
	KindJobFailed      ErrorKind = "job_failed"
	KindTimedOut       ErrorKind = "timed_out"
	KindProtocol       ErrorKind = "protocol"
	KindAborted        ErrorKind = "aborted"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNetwork        = errors.New("no response from studio server")
	ErrSubmission     = errors.New("submission rejected")
	ErrUploadRejected = errors.New("upload rejected")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobFailed      = errors.New("job failed")
	ErrTimedOut       = errors.New("job still processing, try again later")
	ErrProtocol       = errors.New("protocol error")
	ErrAborted        = errors.New("aborted")
)

var sentinels = map[ErrorKind]error{
	KindValidation:     ErrValidation,
	KindNetwork:        ErrNetwork,
	KindSubmission:     ErrSubmission,
	KindUploadRejected: ErrUploadRejected,
	KindJobNotFound:    ErrJobNotFound,
	KindJobFailed:      ErrJobFailed,
	KindTimedOut:       ErrTimedOut,
	KindProtocol:       ErrProtocol,
	KindAborted:        ErrAborted,
}

// Error is the single error type returned by the orchestration layer.
// Transient marks status-fetch failures that the poller may retry.
type Error struct {
	Kind       ErrorKind
	JobKind    models.JobKind
	JobID      string
	Endpoint   string
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.JobKind != "" {
		fmt.Fprintf(&b, " [%s", e.JobKind)
		if e.JobID != "" {
			fmt.Fprintf(&b, " %s", e.JobID)
		}
		b.WriteString("]")
	}
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " %s", e.Endpoint)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

// StageError tags a failure with the pipeline stage that produced it.
type StageError struct {
	Index int
	Name  string
	Kind  models.JobKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d %s (%s): %v", e.Index, e.Name, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
