package template

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/v2clash/internal/model"
)

const CodeUnreadable = "TEMPLATE_UNREADABLE"

// ErrUnreadable matches any TemplateError with CodeUnreadable. A template that
// is missing or corrupt is fatal for the whole batch.
var ErrUnreadable = errors.New("template unreadable")

type TemplateError struct {
	AppError model.AppError
	Cause    error
}

func (e *TemplateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error { return e.Cause }

func (e *TemplateError) Is(target error) bool {
	return e != nil && target == ErrUnreadable && e.AppError.Code == CodeUnreadable
}

func unreadable(stage, name, message string, cause error) error {
	return &TemplateError{
		AppError: model.AppError{
			Code:    CodeUnreadable,
			Message: message,
			Stage:   stage,
			URL:     name,
		},
		Cause: cause,
	}
}
