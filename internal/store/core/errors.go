package core

import "errors"

var (
	// ErrNotFound: el usuario no existe. Es un resultado normal (usuario
	// no registrado), no una falla.
	ErrNotFound = errors.New("not found")
	// ErrConflict: violación de unicidad de username.
	ErrConflict = errors.New("conflict")
)
