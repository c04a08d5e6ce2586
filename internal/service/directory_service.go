package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vaultdrive/internal/domain"
)

// DirectoryService — слой выборки документов в пределах области тенанта.
type DirectoryService struct {
	repo   DocumentStore
	access AccessEvaluator
}

func NewDirectoryService(repo DocumentStore, access AccessEvaluator) *DirectoryService {
	return &DirectoryService{
		repo:   repo,
		access: access,
	}
}

// List возвращает документы области, прошедшие структурные фильтры.
// Порядок фиксирован: сначала фильтр по тенанту и структурным условиям
// на уровне БД, затем ACL-фильтрация через CanRead. Из-за второго шага
// страница может оказаться короче запрошенного лимита.
func (s *DirectoryService) List(ctx context.Context, scope domain.Scope, principal *domain.Principal, filter domain.DirectoryFilter) ([]domain.Document, error) {
	docs, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, storeErr(err)
	}

	visible := make([]domain.Document, 0, len(docs))
	for i := range docs {
		if s.access.CanRead(principal, &docs[i]) {
			visible = append(visible, docs[i])
		}
	}
	return visible, nil
}

// Get возвращает документ по идентификатору. Документ вне области тенанта
// неотличим от несуществующего (NotFound); запрет ACL — отдельная ошибка
// (Forbidden), существование документа при этом не скрывается.
func (s *DirectoryService) Get(ctx context.Context, scope domain.Scope, principal *domain.Principal, docID uuid.UUID) (*domain.Document, error) {
	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return nil, storeErr(err)
	}

	if !inScope(scope, doc) {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, docID)
	}
	if !s.access.CanRead(principal, doc) {
		return nil, fmt.Errorf("%w: read denied", domain.ErrForbidden)
	}

	return doc, nil
}
