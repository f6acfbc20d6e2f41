package approval

import "context"

// RoleResolver 把角色名解析成当前持有该角色的用户。
// 角色与权限模型由外部系统维护，核心只依赖这个接口。
type RoleResolver interface {
	ResolveRoles(ctx context.Context, roles []string) ([]string, error)
}

// StaticRoleResolver 基于静态映射的解析器，用于测试和单机部署
type StaticRoleResolver struct {
	roles map[string][]string
}

// NewStaticRoleResolver 创建静态解析器
func NewStaticRoleResolver(roles map[string][]string) *StaticRoleResolver {
	if roles == nil {
		roles = make(map[string][]string)
	}
	return &StaticRoleResolver{roles: roles}
}

// ResolveRoles 实现 RoleResolver，按声明顺序去重合并
func (r *StaticRoleResolver) ResolveRoles(_ context.Context, roles []string) ([]string, error) {
	var users []string
	seen := make(map[string]struct{})
	for _, role := range roles {
		for _, user := range r.roles[role] {
			if _, ok := seen[user]; ok {
				continue
			}
			seen[user] = struct{}{}
			users = append(users, user)
		}
	}
	return users, nil
}
