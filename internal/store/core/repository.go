package core

import "context"

// UserRepository define las operaciones del credential store.
// Lecturas concurrentes son seguras; las escrituras se serializan por
// registro (unicidad de username la garantiza el backend).
type UserRepository interface {
	// GetByUsername retorna ErrNotFound si el usuario no existe.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create persiste un usuario nuevo. Retorna ErrConflict si el
	// username ya existe.
	Create(ctx context.Context, u *User) (*User, error)

	// UpdateDuoUserID guarda el ID de aprovisionamiento en el proveedor.
	UpdateDuoUserID(ctx context.Context, userID, duoUserID string) error

	// Delete elimina un usuario por ID. Se usa para deshacer un registro
	// cuando el aprovisionamiento en el proveedor MFA falla.
	Delete(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
	Close()
}
