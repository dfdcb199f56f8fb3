// Package errors define el formato de error HTTP de la aplicación.
package errors

import (
	"encoding/json"
	"net/http"
)

// errorResponse fija exactamente qué ve el cliente: código, mensaje y
// detalle opcional. La causa interna (hashes, respuestas del proveedor)
// nunca sale por acá.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError serializa err como respuesta JSON con su status HTTP.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}
