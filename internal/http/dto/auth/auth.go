// Package auth contiene DTOs para los endpoints de autenticación.
package auth

// RegisterRequest representa la solicitud de alta de usuario.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse representa la respuesta exitosa de registro.
type RegisterResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// LoginRequest representa la solicitud de login por password.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse representa la respuesta del primer paso de login.
//
// En flujo redirect, Status="redirect" y RedirectURL apunta al proveedor MFA.
// En flujo polling (o con failmode open activado), Status="authenticated" y
// el cliente ya recibió la cookie de sesión. Con Status="enroll_required",
// RedirectURL apunta al portal de inscripción del proveedor.
type LoginResponse struct {
	Status      string `json:"status"` // redirect|authenticated|enroll_required
	RedirectURL string `json:"redirect_url,omitempty"`
	Username    string `json:"username,omitempty"`
	Message     string `json:"message,omitempty"`
}

// CallbackResponse representa la respuesta del callback del proveedor MFA.
type CallbackResponse struct {
	Status   string `json:"status"` // authenticated
	Username string `json:"username"`
}

// HomeResponse representa la vista de la página protegida.
type HomeResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	Message       string `json:"message"`
}
