package schemas

import (
	"errors"
	"fmt"
	"time"
)

// -- Error Taxonomy --

// ErrOperatorCancelled signals that the operator backed out of a prompt. It is
// a clean exit, not a failure.
var ErrOperatorCancelled = errors.New("operation cancelled by operator")

// StartupError is a fatal configuration problem detected before any page is
// loaded, such as a missing credential.
type StartupError struct {
	Reason string
	Err    error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("startup failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("startup failed: %s", e.Reason)
}

func (e *StartupError) Unwrap() error { return e.Err }

// NavigationFailure wraps a page load timeout or network fault. The session
// that produced it is still usable.
type NavigationFailure struct {
	URL string
	Err error
}

func (e *NavigationFailure) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationFailure) Unwrap() error { return e.Err }

// ExtractionParseFailure means the model output held no parseable JSON object.
type ExtractionParseFailure struct {
	// Raw is the candidate text that failed to parse, truncated.
	Raw string
	Err error
}

func (e *ExtractionParseFailure) Error() string {
	return fmt.Sprintf("failed to parse model output as JSON: %v (extracted: %q)", e.Err, e.Raw)
}

func (e *ExtractionParseFailure) Unwrap() error { return e.Err }

// ResolutionMiss reports a form action whose hints matched no form in the DOM.
type ResolutionMiss struct {
	Action string
	Hints  FormIdentity
}

func (e *ResolutionMiss) Error() string {
	return fmt.Sprintf("could not locate form for action %q (form_id=%q form_action_value=%q input_selector=%q)",
		e.Action, e.Hints.FormID, e.Hints.FormAction, e.Hints.InputSelector)
}

// SubmissionTimeout reports that no page settle was observed after a form was
// triggered. Callers read the current page state anyway.
type SubmissionTimeout struct {
	Timeout time.Duration
}

func (e *SubmissionTimeout) Error() string {
	return fmt.Sprintf("page did not settle within %s after submission", e.Timeout)
}

// IsRecoverable reports whether err is handled inside a page cycle rather than
// ending the run.
func IsRecoverable(err error) bool {
	var miss *ResolutionMiss
	var timeout *SubmissionTimeout
	return errors.As(err, &miss) || errors.As(err, &timeout)
}
