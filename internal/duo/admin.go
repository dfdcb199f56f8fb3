package duo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// AdminConfig: credenciales de la Admin API (distintas de las de Auth).
type AdminConfig struct {
	IKey string
	SKey string
	// GroupName: grupo al que se agregan los usuarios nuevos para
	// aplicar políticas del proveedor.
	GroupName string
}

// Admin aprovisiona usuarios en el proveedor durante el registro.
type Admin struct {
	c   *Client
	cfg AdminConfig
}

// NewAdmin crea el cliente Admin reutilizando el transporte del Client.
func NewAdmin(c *Client, cfg AdminConfig) (*Admin, error) {
	if cfg.IKey == "" || cfg.SKey == "" {
		return nil, fmt.Errorf("duo: admin ikey and skey are required")
	}
	if cfg.GroupName == "" {
		cfg.GroupName = "authgate_users"
	}
	return &Admin{c: c, cfg: cfg}, nil
}

// Group es un grupo del proveedor.
type Group struct {
	ID   string `json:"group_id"`
	Name string `json:"name"`
}

// AdminUser es un usuario del proveedor.
type AdminUser struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
}

// GetGroups lista los grupos existentes.
func (a *Admin) GetGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := a.c.signedCall(ctx, a.cfg.IKey, a.cfg.SKey,
		http.MethodGet, "/admin/v1/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup crea un grupo y devuelve su ID.
func (a *Admin) CreateGroup(ctx context.Context, name string) (*Group, error) {
	params := url.Values{}
	params.Set("name", name)

	var g Group
	if err := a.c.signedCall(ctx, a.cfg.IKey, a.cfg.SKey,
		http.MethodPost, "/admin/v1/groups", params, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// AddUser crea un usuario en el proveedor.
func (a *Admin) AddUser(ctx context.Context, username string) (*AdminUser, error) {
	params := url.Values{}
	params.Set("username", username)

	var u AdminUser
	if err := a.c.signedCall(ctx, a.cfg.IKey, a.cfg.SKey,
		http.MethodPost, "/admin/v1/users", params, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AddUserToGroup asocia un usuario a un grupo.
func (a *Admin) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	params := url.Values{}
	params.Set("group_id", groupID)

	return a.c.signedCall(ctx, a.cfg.IKey, a.cfg.SKey,
		http.MethodPost, "/admin/v1/users/"+userID+"/groups", params, nil)
}

// resolveGroup busca el grupo configurado; si no existe lo crea.
func (a *Admin) resolveGroup(ctx context.Context) (*Group, error) {
	groups, err := a.GetGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name == a.cfg.GroupName {
			return &g, nil
		}
	}
	return a.CreateGroup(ctx, a.cfg.GroupName)
}

// EnrollUser crea el usuario en el proveedor y lo agrega al grupo de
// políticas. Devuelve el ID del usuario aprovisionado.
func (a *Admin) EnrollUser(ctx context.Context, username string) (string, error) {
	u, err := a.AddUser(ctx, username)
	if err != nil {
		return "", fmt.Errorf("duo: add user: %w", err)
	}
	g, err := a.resolveGroup(ctx)
	if err != nil {
		return "", fmt.Errorf("duo: resolve group: %w", err)
	}
	if err := a.AddUserToGroup(ctx, u.ID, g.ID); err != nil {
		return "", fmt.Errorf("duo: add user to group: %w", err)
	}
	return u.ID, nil
}
