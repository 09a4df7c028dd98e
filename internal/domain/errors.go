package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so transports can map them without
// inspecting messages.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindRefinement         Kind = "refinement"
	KindSynthesis          Kind = "synthesis"
	KindSuggestionDegraded Kind = "suggestion_degraded"
	KindLogoDecode         Kind = "logo_decode"
	KindHistoryWrite       Kind = "history_write"
	KindTimeout            Kind = "timeout"
	KindInternal           Kind = "internal"
)

var (
	ErrInvalidPrompt     = errors.New("prompt is required")
	ErrEmptyStream       = errors.New("text service returned no content")
	ErrNoImages          = errors.New("image service returned no images")
	ErrInvalidLogo       = errors.New("logo could not be decoded")
	ErrRecordNotFound    = errors.New("generation record not found")
	ErrInvalidPosterData = errors.New("poster image data is invalid")
)

// Error carries a Kind alongside a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds an Error. Deadline and cancellation causes are promoted to
// KindTimeout so callers see one kind for an abandoned run.
func NewError(kind Kind, message string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// MessageOf returns the human readable message carried by err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
