package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Principal представляет аутентифицированного пользователя.
// Аутентификацию выполняет внешний шлюз, ядро только авторизует.
type Principal struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

// Scope определяет область видимости по тенантам для запросов каталога.
// Tenant == nil означает отсутствие фильтра; CrossTenant — административный
// сквозной доступ (отдельное значение, а не магическая строка).
type Scope struct {
	Tenant      *uuid.UUID
	CrossTenant bool
}

// CrossTenantScope возвращает административную область без фильтра по тенанту.
func CrossTenantScope() Scope {
	return Scope{CrossTenant: true}
}

// TenantScope возвращает область, ограниченную одним тенантом.
func TenantScope(id uuid.UUID) Scope {
	return Scope{Tenant: &id}
}

// ResolveScope разбирает идентификатор тенанта из запроса.
// Невалидный или пустой идентификатор трактуется как отсутствие фильтра.
func ResolveScope(raw string) Scope {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Scope{}
	}
	if raw == "*" {
		return CrossTenantScope()
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return Scope{}
	}
	return TenantScope(id)
}

// Filtered сообщает, нужно ли применять фильтр по тенанту.
func (s Scope) Filtered() bool {
	return !s.CrossTenant && s.Tenant != nil
}
