package core

import "time"

// User es el registro de credenciales primarias.
// El password SIEMPRE se guarda hasheado (argon2id PHC string).
type User struct {
	ID           string
	Username     string
	PasswordHash string
	// DuoUserID es el ID del usuario en el proveedor MFA, si fue
	// aprovisionado via Admin API durante el registro. Vacío si no.
	DuoUserID string
	CreatedAt time.Time
}
