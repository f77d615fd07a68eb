package usecase

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorMissingPrompt       ErrorCode = "MISSING_PROMPT"
	ErrorMissingAudioContext ErrorCode = "MISSING_AUDIO_CONTEXT"
	ErrorSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	ErrorUpstreamUnreachable ErrorCode = "UPSTREAM_UNREACHABLE"
	ErrorUpstreamBadStatus   ErrorCode = "UPSTREAM_BAD_STATUS"
	ErrorRelayInternal       ErrorCode = "RELAY_INTERNAL"
)

// Messages shown to API clients for validation failures
const (
	MessageMissingPrompt       = "Prompt or question is required"
	MessageMissingAudioContext = "Audio results or audio data is required"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message is the client-facing text of the error
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && (e.Code == ErrorUpstreamUnreachable || e.Code == ErrorUpstreamBadStatus) {
		return e.Err.Error()
	}
	return e.Reason
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code carried by err, or RELAY_INTERNAL
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorRelayInternal
}

// MessageOf returns the client-facing text of err
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Message()
	}
	return err.Error()
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// classifyUpstream maps a model endpoint failure onto the taxonomy. Timeouts
// and connection failures are not told apart.
func classifyUpstream(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	var sc httpStatusCoder
	if errors.As(err, &sc) {
		return newError(ErrorUpstreamBadStatus, fmt.Sprintf("upstream returned status %d", sc.HTTPStatusCode()), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorUpstreamUnreachable, "upstream timed out", err)
	}
	return newError(ErrorUpstreamUnreachable, "upstream unreachable", err)
}
