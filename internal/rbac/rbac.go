// Package rbac сопоставляет идентификатор чата с ролями. Список
// администраторов задаётся конфигурацией; администратор получает и роль
// клиента, чтобы пользоваться обычными сценариями.
package rbac

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

type Resolver struct {
	adminIDs map[string]struct{}
}

func NewResolver(adminIDs []string) *Resolver {
	ids := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return &Resolver{adminIDs: ids}
}

func (r *Resolver) Roles(identity string) []Role {
	if _, ok := r.adminIDs[identity]; ok {
		return []Role{RoleAdmin, RoleClient}
	}
	return []Role{RoleClient}
}

func (r *Resolver) IsAdmin(identity string) bool {
	_, ok := r.adminIDs[identity]
	return ok
}
