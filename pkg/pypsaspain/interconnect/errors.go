package interconnect

import (
	"errors"
	"fmt"
)

// Failure kinds of the topology builder. Every failure is a
// deterministic input-validation error: nothing here is retried, and
// a failed build emits no partial output.
var (
	// ErrConfig marks malformed or cross-referencing table entries.
	ErrConfig = errors.New("invalid interconnection configuration")
	// ErrResolution marks a nearest-node search against an empty or
	// disjoint base network.
	ErrResolution = errors.New("nearest node resolution failed")
	// ErrMissingData marks a required price series that is absent or
	// does not cover the snapshot range.
	ErrMissingData = errors.New("missing price data")
)

// Error is the structured failure of the builder. Interconnection
// names the offending table entry so operators can correct the source
// table; Kind is one of the sentinel errors above.
type Error struct {
	Kind            error
	Interconnection string
	Detail          string
	Cause           error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Interconnection != "" {
		msg = fmt.Sprintf("interconnection %q: %s", e.Interconnection, msg)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the error kind as well as the cause chain, so callers
// can branch with errors.Is(err, ErrConfig) and friends.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Kind, target) || errors.Is(e.Cause, target)
}

func configError(ic, format string, args ...interface{}) error {
	return &Error{Kind: ErrConfig, Interconnection: ic, Detail: fmt.Sprintf(format, args...)}
}

func resolutionError(ic, format string, args ...interface{}) error {
	return &Error{Kind: ErrResolution, Interconnection: ic, Detail: fmt.Sprintf(format, args...)}
}

func missingDataError(ic, detail string, cause error) error {
	return &Error{Kind: ErrMissingData, Interconnection: ic, Detail: detail, Cause: cause}
}

// IsConfig reports whether err is a table-content error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsResolution reports whether err is a nearest-node failure.
func IsResolution(err error) bool {
	return errors.Is(err, ErrResolution)
}

// IsMissingData reports whether err is a price-series failure.
func IsMissingData(err error) bool {
	return errors.Is(err, ErrMissingData)
}
