package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/washpark/washpark/internal/authz"
	"github.com/washpark/washpark/internal/session"
	"github.com/washpark/washpark/internal/shared"
)

type stubRepo struct {
	staff map[string]Staff
}

func (r *stubRepo) FindByEmail(ctx context.Context, email string) (*Staff, error) {
	staff, ok := r.staff[strings.ToLower(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &staff, nil
}

type stubRoles struct {
	roles     map[int64]session.RoleRecord
	overrides map[int64]authz.Overrides
}

func (s *stubRoles) RoleRecord(ctx context.Context, roleID int64) (session.RoleRecord, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return session.RoleRecord{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *stubRoles) RoleOverrides(ctx context.Context, roleID int64) (authz.Overrides, error) {
	return s.overrides[roleID], nil
}

func newTestService(t *testing.T) (*Service, *stubRepo, *stubRoles) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	tenantID := int64(1)
	repo := &stubRepo{staff: map[string]Staff{
		"lead@washpark.test": {
			ID:           42,
			TenantID:     &tenantID,
			Email:        "lead@washpark.test",
			Name:         "Shift Lead",
			PasswordHash: string(hash),
			RoleID:       7,
			IsActive:     true,
		},
	}}
	roles := &stubRoles{
		roles: map[int64]session.RoleRecord{
			7: {ID: 7, TenantID: &tenantID, Archetype: authz.ArchetypeSupervisor, Level: 70, Active: true},
		},
		overrides: map[int64]authz.Overrides{},
	}

	sessions := session.NewStore(client, time.Hour, nil)
	return NewService(repo, roles, sessions), repo, roles
}

func TestLoginSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)

	sess, err := svc.Login(context.Background(), "lead@washpark.test", "hunter2")
	require.NoError(t, err)
	require.Equal(t, int64(42), sess.Actor().StaffID)
	require.Equal(t, 70, sess.Actor().Level)
	require.True(t, sess.Has(authz.PermRolesView))
	require.False(t, sess.Has(authz.PermRolesManage))
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "lead@washpark.test", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody@washpark.test", "hunter2")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginInactiveStaff(t *testing.T) {
	svc, repo, _ := newTestService(t)

	staff := repo.staff["lead@washpark.test"]
	staff.IsActive = false
	repo.staff["lead@washpark.test"] = staff

	_, err := svc.Login(context.Background(), "lead@washpark.test", "hunter2")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginInactiveRole(t *testing.T) {
	svc, _, roles := newTestService(t)

	role := roles.roles[7]
	role.Active = false
	roles.roles[7] = role

	// A deactivated role denies at login, not after.
	_, err := svc.Login(context.Background(), "lead@washpark.test", "hunter2")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutDestroysSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "lead@washpark.test", "hunter2")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess.ID()))
	require.NoError(t, svc.Logout(ctx, sess.ID()), "logout is idempotent")
}
