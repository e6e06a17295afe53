package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/v2clash/internal/artifact"
	"github.com/John-Robertt/v2clash/internal/fetch"
	"github.com/John-Robertt/v2clash/internal/inbound"
	"github.com/John-Robertt/v2clash/internal/model"
	"github.com/John-Robertt/v2clash/internal/source"
	"github.com/John-Robertt/v2clash/internal/template"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

// statusFromErr maps a typed error from any pipeline stage to the HTTP status
// and payload returned to the client.
func statusFromErr(err error) (int, model.AppError) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status, ae.AppError
	}

	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		// A remote template that cannot be fetched is still reported as a
		// template failure.
		var te *template.TemplateError
		if !errors.As(err, &te) {
			return fe.Status, fe.AppError
		}
	}

	if errors.Is(err, inbound.ErrClientRequired) {
		return http.StatusBadRequest, model.AppError{
			Code:    "CLIENT_REQUIRED",
			Message: "inbound 来源需要指定客户端 email",
			Stage:   "validate_request",
			Hint:    "expected: /clash?email=<client email>",
		}
	}

	// Template problems are server-side configuration errors.
	var te *template.TemplateError
	if errors.As(err, &te) {
		return http.StatusInternalServerError, te.AppError
	}

	// Upstream content that cannot be understood => 422, like other
	// user content errors.
	var se *source.SourceError
	if errors.As(err, &se) {
		if se.AppError.Code == source.CodeBase64Decode {
			return http.StatusUnprocessableEntity, se.AppError
		}
		return http.StatusInternalServerError, se.AppError
	}

	var ie *inbound.InboundError
	if errors.As(err, &ie) {
		return http.StatusUnprocessableEntity, ie.AppError
	}

	var we *artifact.WriteError
	if errors.As(err, &we) {
		return http.StatusInternalServerError, we.AppError
	}

	// Fallback: internal bug.
	return http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	}
}

func (s *server) writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status, app := statusFromErr(err)
	s.writeError(w, status, app)
}

func (s *server) writeError(w http.ResponseWriter, status int, app model.AppError) {
	s.opt.Metrics.IncAppError(app.Stage, app.Code)
	WriteError(w, status, app)
}
