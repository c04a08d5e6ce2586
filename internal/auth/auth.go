package auth

import (
	"fmt"
	"net/http"

	"vaultdrive/internal/domain"
)

// Заголовки, которые проставляет внешний шлюз после аутентификации.
// Ядро токены не проверяет, оно доверяет шлюзу и только авторизует.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
	HeaderTenantID = "X-Tenant-Id"
)

// ResolvePrincipal извлекает пользователя из заголовков запроса.
func ResolvePrincipal(r *http.Request) (*domain.Principal, error) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		return nil, fmt.Errorf("no authenticated user")
	}

	return &domain.Principal{
		ID:       userID,
		Role:     r.Header.Get(HeaderUserRole),
		TenantID: r.Header.Get(HeaderTenantID),
	}, nil
}

// ResolveScope определяет область видимости запроса. Административная
// сквозная область ("*") присваивается только администраторам; для остальных
// такой заголовок трактуется как невалидный идентификатор тенанта, то есть
// область без фильтра — документы все равно закрывает ACL-фильтрация.
func ResolveScope(r *http.Request, isAdmin bool) domain.Scope {
	raw := r.Header.Get(HeaderTenantID)
	if raw == "*" && !isAdmin {
		return domain.Scope{}
	}
	return domain.ResolveScope(raw)
}
