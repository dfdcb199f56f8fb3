package errors

import (
	"fmt"
	"net/http"
)

// AppError es el error que cruza la frontera HTTP. Code y Message son
// estables para los clientes; Err guarda la causa para los logs y jamás
// se serializa.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// FromError normaliza cualquier error a AppError. Un error desconocido se
// reporta como interno conservando la causa para el log.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}

// WithDetail devuelve una copia con detalle; las variables base no se mutan.
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause devuelve una copia con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// Errores base; los controllers los especializan con WithDetail.
var (
	ErrBadRequest = &AppError{
		Code: "bad_request", Message: "request inválido", HTTPStatus: http.StatusBadRequest,
	}
	ErrInvalidJSON = &AppError{
		Code: "invalid_json", Message: "JSON inválido", HTTPStatus: http.StatusBadRequest,
	}
	ErrUnauthorized = &AppError{
		Code: "unauthorized", Message: "no autorizado", HTTPStatus: http.StatusUnauthorized,
	}
	ErrForbidden = &AppError{
		Code: "forbidden", Message: "prohibido", HTTPStatus: http.StatusForbidden,
	}
	ErrNotFound = &AppError{
		Code: "not_found", Message: "no encontrado", HTTPStatus: http.StatusNotFound,
	}
	ErrMethodNotAllowed = &AppError{
		Code: "method_not_allowed", Message: "método no permitido", HTTPStatus: http.StatusMethodNotAllowed,
	}
	ErrConflict = &AppError{
		Code: "conflict", Message: "conflicto", HTTPStatus: http.StatusConflict,
	}
	ErrTooManyRequests = &AppError{
		Code: "too_many_requests", Message: "demasiados requests", HTTPStatus: http.StatusTooManyRequests,
	}
	ErrInternalServerError = &AppError{
		Code: "internal_error", Message: "error interno", HTTPStatus: http.StatusInternalServerError,
	}
	ErrServiceUnavailable = &AppError{
		Code: "service_unavailable", Message: "servicio no disponible", HTTPStatus: http.StatusServiceUnavailable,
	}
)
