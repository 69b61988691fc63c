package controller

import (
	"errors"
	"fmt"
)

const (
	CodeValidation      = "VALIDATION"
	CodeTabNotFound     = "TAB_NOT_FOUND"
	CodeTabLimit        = "TAB_LIMIT"
	CodeViewUnavailable = "VIEW_UNAVAILABLE"
	CodeStateFailure    = "STATE_FAILURE"
)

// ErrStopped is returned by operations submitted after the loop exited.
var ErrStopped = errors.New("controller stopped")

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

func tabNotFound(id int64) error {
	return newError(CodeTabNotFound, fmt.Sprintf("tab %d not found", id), nil)
}
