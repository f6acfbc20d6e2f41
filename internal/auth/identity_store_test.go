package auth

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func openAuthTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username, password, roles, status string) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Roles:        roles,
		Status:       status,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestAuthenticate(t *testing.T) {
	db := openAuthTestDB(t)
	store := NewIdentityStore(db)
	seedUser(t, db, "maria", "segredo123", "finance_officer", "active")
	ctx := context.Background()

	user, err := store.Authenticate(ctx, "maria", "segredo123")
	require.NoError(t, err)
	require.Equal(t, "maria", user.Username)

	// 用户名大小写不敏感
	user, err = store.Authenticate(ctx, "  MARIA ", "segredo123")
	require.NoError(t, err)
	require.Equal(t, "maria", user.Username)

	_, err = store.Authenticate(ctx, "maria", "errada")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = store.Authenticate(ctx, "desconhecida", "segredo123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = store.Authenticate(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateRejectsInactiveUser(t *testing.T) {
	db := openAuthTestDB(t)
	store := NewIdentityStore(db)
	seedUser(t, db, "joao", "segredo123", "user", "disabled")

	_, err := store.Authenticate(context.Background(), "joao", "segredo123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestFindByID(t *testing.T) {
	db := openAuthTestDB(t)
	store := NewIdentityStore(db)
	user := seedUser(t, db, "ana", "x12345", "admin", "active")

	found, err := store.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, "ana", found.Username)

	_, err = store.FindByID(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveRoles(t *testing.T) {
	db := openAuthTestDB(t)
	store := NewIdentityStore(db)
	ctx := context.Background()

	officer := seedUser(t, db, "berta", "x12345", "finance_officer", "active")
	both := seedUser(t, db, "carlos", "x12345", "finance_officer,finance_director", "active")
	seedUser(t, db, "dario", "x12345", "finance_officer", "disabled")
	seedUser(t, db, "elsa", "x12345", "urban_technician", "active")

	ids, err := store.ResolveRoles(ctx, []string{"finance_officer"})
	require.NoError(t, err)
	// 按用户名排序，禁用用户被排除
	require.Equal(t, []string{officer.ID, both.ID}, ids)

	// 多角色命中同一用户只返回一次
	ids, err = store.ResolveRoles(ctx, []string{"finance_officer", "finance_director"})
	require.NoError(t, err)
	require.Equal(t, []string{officer.ID, both.ID}, ids)

	ids, err = store.ResolveRoles(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = store.ResolveRoles(ctx, []string{"inexistente"})
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestRoleListDefaults(t *testing.T) {
	u := &User{}
	require.Equal(t, []string{"user"}, u.RoleList())

	u.Roles = " admin , finance_officer "
	require.Equal(t, []string{"admin", "finance_officer"}, u.RoleList())

	u.Roles = " , "
	require.Equal(t, []string{"user"}, u.RoleList())
}

func TestEnsureAdminUserIdempotent(t *testing.T) {
	db := openAuthTestDB(t)
	store := NewIdentityStore(db)
	ctx := context.Background()

	require.NoError(t, store.EnsureAdminUser(ctx, "Admin", "admin123"))
	require.NoError(t, store.EnsureAdminUser(ctx, "admin", "outra-senha"))

	var count int64
	require.NoError(t, db.Model(&User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	// 第二次调用不覆盖原密码
	user, err := store.Authenticate(ctx, "admin", "admin123")
	require.NoError(t, err)
	require.Contains(t, user.RoleList(), "admin")
}
