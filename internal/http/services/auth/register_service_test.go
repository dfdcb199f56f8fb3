package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baluarte/authgate/internal/duo"
	"github.com/baluarte/authgate/internal/duo/duotest"
	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	"github.com/baluarte/authgate/internal/security/password"
	"github.com/baluarte/authgate/internal/store/core"
	"github.com/baluarte/authgate/internal/store/memory"
)

func TestRegister_Validation(t *testing.T) {
	svc := NewRegisterService(RegisterDeps{Repo: memory.New()})
	ctx := context.Background()

	_, err := svc.Register(ctx, dto.RegisterRequest{Username: "", Password: "longenough"})
	require.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.Register(ctx, dto.RegisterRequest{Username: "alice", Password: ""})
	require.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.Register(ctx, dto.RegisterRequest{Username: "alice", Password: "short"})
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegister_WithoutProvisioning(t *testing.T) {
	repo := memory.New()
	svc := NewRegisterService(RegisterDeps{Repo: repo})
	ctx := context.Background()

	user, err := svc.Register(ctx, dto.RegisterRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "alice", user.Username)
	require.Empty(t, user.DuoUserID)

	// El password se guarda hasheado, nunca en claro.
	stored, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotEqual(t, "correct-password", stored.PasswordHash)
	require.True(t, password.Verify("correct-password", stored.PasswordHash))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc := NewRegisterService(RegisterDeps{Repo: memory.New()})
	ctx := context.Background()

	_, err := svc.Register(ctx, dto.RegisterRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, dto.RegisterRequest{Username: "Alice", Password: "other-password"})
	require.ErrorIs(t, err, ErrDuplicateUsername)
}

func newTestAdmin(t *testing.T, srv *duotest.Server) *duo.Admin {
	t.Helper()
	a, err := duo.NewAdmin(srv.Client(t), duo.AdminConfig{
		IKey:      "ADMINIKEY0000000000",
		SKey:      "adminskeyadminskeyadminskey",
		GroupName: "authgate_users",
	})
	require.NoError(t, err)
	return a
}

func TestRegister_WithProvisioning(t *testing.T) {
	srv := duotest.New(t)
	repo := memory.New()
	svc := NewRegisterService(RegisterDeps{Repo: repo, Admin: newTestAdmin(t, srv)})
	ctx := context.Background()

	user, err := svc.Register(ctx, dto.RegisterRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	require.NotEmpty(t, user.DuoUserID)

	stored, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, user.DuoUserID, stored.DuoUserID)
	require.Equal(t, []string{"alice"}, srv.AdminUsernames())
}

func TestRegister_ProvisioningFailure_RollsBack(t *testing.T) {
	srv := duotest.New(t)
	srv.AdminFail = true
	repo := memory.New()
	svc := NewRegisterService(RegisterDeps{Repo: repo, Admin: newTestAdmin(t, srv)})
	ctx := context.Background()

	_, err := svc.Register(ctx, dto.RegisterRequest{Username: "alice", Password: "correct-password"})
	require.ErrorIs(t, err, ErrProvisioningFailed)

	// El alta se deshace: el usuario no queda a medio registrar.
	_, err = repo.GetByUsername(ctx, "alice")
	require.ErrorIs(t, err, core.ErrNotFound)
}
