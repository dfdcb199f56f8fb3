// Package helpers reúne utilidades compartidas por los controllers.
package helpers

import (
	"encoding/json"
	"net/http"
)

// WriteJSON serializa v con el Content-Type y status dados. Un error de
// encoding acá ya no puede reportarse al cliente: el header salió.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
