package middlewares

import "net/http"

// Middleware decora un http.Handler. Compatible con chi.Router.Use.
type Middleware func(http.Handler) http.Handler

// Chain envuelve h con los middlewares dados. El primero de la lista es el
// más externo: Chain(h, A, B) atiende el request como A -> B -> h.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
