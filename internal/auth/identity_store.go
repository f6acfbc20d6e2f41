package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 表示用户不存在或处于非激活状态
	ErrUserNotFound = errors.New("auth: 用户不存在")
	// ErrInvalidCredentials 表示用户名或密码错误
	ErrInvalidCredentials = errors.New("auth: 用户名或密码错误")
)

// User 平台用户
type User struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Username     string    `json:"username" gorm:"size:100;uniqueIndex;not null"`
	FullName     string    `json:"full_name" gorm:"size:200"`
	PasswordHash string    `json:"-" gorm:"size:100;not null"`
	Roles        string    `json:"roles" gorm:"size:500"` // 逗号分隔的角色列表
	Status       string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// RoleList 解析角色列表
func (u *User) RoleList() []string {
	if u.Roles == "" {
		return []string{"user"}
	}
	parts := strings.Split(u.Roles, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if r := strings.TrimSpace(p); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return []string{"user"}
	}
	return roles
}

// IdentityStore 用户身份存储
type IdentityStore struct {
	db *gorm.DB
}

// NewIdentityStore 创建身份存储
func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

// Authenticate 校验用户名密码，成功返回用户
func (s *IdentityStore) Authenticate(ctx context.Context, username, password string) (*User, error) {
	cleanName := strings.TrimSpace(strings.ToLower(username))
	if cleanName == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = ? AND status = ?", cleanName, "active").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// FindByID 按ID查询激活用户
func (s *IdentityStore) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, "active").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ResolveRoles 返回拥有任一指定角色的激活用户ID列表，按用户名排序保证稳定。
// 角色以逗号分隔存储在 users.roles 中，数量可控，直接在内存里匹配。
func (s *IdentityStore) ResolveRoles(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	wanted := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if clean := strings.ToLower(strings.TrimSpace(r)); clean != "" {
			wanted[clean] = struct{}{}
		}
	}

	var users []User
	err := s.db.WithContext(ctx).
		Select("id", "username", "roles").
		Where("status = ?", "active").
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	var ids []string
	for i := range users {
		for _, r := range users[i].RoleList() {
			if _, ok := wanted[strings.ToLower(r)]; ok {
				ids = append(ids, users[i].ID)
				break
			}
		}
	}
	return ids, nil
}

// EnsureAdminUser 确保内置管理员账号存在（幂等，用于启动种子）
func (s *IdentityStore) EnsureAdminUser(ctx context.Context, username, password string) error {
	cleanName := strings.TrimSpace(strings.ToLower(username))
	if cleanName == "" || password == "" {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("LOWER(username) = ?", cleanName).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.New().String(),
		Username:     cleanName,
		FullName:     "系统管理员",
		PasswordHash: string(hashBytes),
		Roles:        "admin",
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		// 并发启动时的唯一键冲突可忽略
		if strings.Contains(strings.ToLower(err.Error()), "unique") ||
			strings.Contains(err.Error(), "duplicate") {
			return nil
		}
		return err
	}

	return nil
}
