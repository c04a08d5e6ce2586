package service

import (
	"strings"

	"vaultdrive/internal/domain"
)

// AccessEvaluator принимает решения о доступе к документу. Чистые функции
// над (principal, document), без побочных эффектов и обращений к хранилищу.
type AccessEvaluator struct{}

func NewAccessEvaluator() AccessEvaluator {
	return AccessEvaluator{}
}

// IsAdmin проверяет административную роль. Совпадение по подстроке "admin"
// намеренно мягкое и сохраняется как есть; поведение закреплено тестом.
func (AccessEvaluator) IsAdmin(p *domain.Principal) bool {
	if p == nil {
		return false
	}
	role := strings.ToLower(strings.TrimSpace(p.Role))
	return strings.Contains(role, "admin") || role == "superadmin"
}

// CanRead решает, может ли пользователь видеть документ.
func (e AccessEvaluator) CanRead(p *domain.Principal, doc *domain.Document) bool {
	if p == nil {
		return false
	}
	if e.IsAdmin(p) {
		return true
	}

	switch doc.Access.EffectiveVisibility() {
	case domain.VisibilityOrg:
		return true
	case domain.VisibilityPrivate:
		return doc.Access.HasOwner(p.ID) || p.ID == doc.CreatedBy
	case domain.VisibilityRestricted:
		return doc.Access.HasOwner(p.ID) || doc.Access.HasViewer(p.ID) || p.ID == doc.CreatedBy
	default:
		return false
	}
}

// CanEdit решает, может ли пользователь изменять документ.
// Наблюдатели права на запись не получают ни в одном режиме видимости.
func (e AccessEvaluator) CanEdit(p *domain.Principal, doc *domain.Document) bool {
	if p == nil {
		return false
	}
	if e.IsAdmin(p) {
		return true
	}
	return doc.Access.HasOwner(p.ID) || p.ID == doc.CreatedBy
}
