package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vaultdrive/internal/domain"
	"vaultdrive/internal/service/s3"
)

const orphanBatchSize = 100

// DocumentStore — контракт хранилища метаданных, который нужен сервисам.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	Save(ctx context.Context, doc *domain.Document) error
	HardDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope domain.Scope, filter domain.DirectoryFilter) ([]domain.Document, error)
	ListOrphans(ctx context.Context, limit int) ([]string, error)
	RemoveOrphan(ctx context.Context, blobKey string) error
}

// DocumentService реализует операции над агрегатом документа.
type DocumentService struct {
	repo   DocumentStore
	blobs  s3.Storage
	access AccessEvaluator
}

func NewDocumentService(repo DocumentStore, blobs s3.Storage, access AccessEvaluator) *DocumentService {
	return &DocumentService{
		repo:   repo,
		blobs:  blobs,
		access: access,
	}
}

// CreateDocumentInput — параметры создания документа.
type CreateDocumentInput struct {
	TenantID  *uuid.UUID
	Title     string
	Folder    string
	Tags      []string
	Access    *domain.AccessConfig
	CreatedBy string
}

// VersionUpload — входящий поток новой версии.
type VersionUpload struct {
	Content  io.Reader
	Filename string
	MIMEType string
}

// Create создает документ. Конфигурация доступа по умолчанию: видимость "org",
// создатель — единственный владелец.
func (s *DocumentService) Create(ctx context.Context, in CreateDocumentInput) (*domain.Document, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidArgument)
	}
	if in.CreatedBy == "" {
		return nil, fmt.Errorf("%w: creator is required", domain.ErrInvalidArgument)
	}

	access := domain.AccessConfig{
		Visibility: domain.VisibilityOrg,
		Owners:     []string{in.CreatedBy},
	}
	if in.Access != nil {
		if !in.Access.Valid() {
			return nil, fmt.Errorf("%w: unknown visibility %q", domain.ErrInvalidArgument, in.Access.Visibility)
		}
		access = *in.Access
	}

	// tags колонка NOT NULL, nil-срез превратился бы в NULL
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		UUID:      uuid.New(),
		TenantID:  in.TenantID,
		Title:     in.Title,
		Folder:    in.Folder,
		Tags:      pq.StringArray(tags),
		Access:    access,
		CreatedAt: now,
		CreatedBy: in.CreatedBy,
		UpdatedAt: now,
		UpdatedBy: in.CreatedBy,
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, storeErr(err)
	}
	return doc, nil
}

// AddVersion загружает содержимое в blob-хранилище и добавляет версию
// в конец цепочки. Указатель latest обновляется в той же транзакции.
func (s *DocumentService) AddVersion(ctx context.Context, docID uuid.UUID, up VersionUpload, actor *domain.Principal) (*domain.Document, error) {
	if up.Content == nil || up.Filename == "" {
		return nil, fmt.Errorf("%w: file content and name are required", domain.ErrInvalidArgument)
	}

	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !s.access.CanEdit(actor, doc) {
		return nil, fmt.Errorf("%w: edit denied", domain.ErrForbidden)
	}

	// Считаем контрольную сумму и размер по мере отправки потока в хранилище
	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(up.Content, hasher)}

	blobKey, err := s.blobs.Put(ctx, counter, up.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	now := time.Now().UTC()

	doc.AppendVersion(domain.Version{
		Filename:   up.Filename,
		MIMEType:   up.MIMEType,
		SizeBytes:  counter.n,
		Checksum:   &checksum,
		BlobKey:    blobKey,
		UploadedAt: now,
		UploadedBy: actor.ID,
	})
	s.stamp(doc, actor, now)

	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, storeErr(err)
	}
	return doc, nil
}

// UpdateMetadata выполняет частичное обновление: меняются только переданные поля.
func (s *DocumentService) UpdateMetadata(ctx context.Context, docID uuid.UUID, patch domain.MetadataPatch, actor *domain.Principal) (*domain.Document, error) {
	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !s.access.CanEdit(actor, doc) {
		return nil, fmt.Errorf("%w: edit denied", domain.ErrForbidden)
	}

	if err := doc.ApplyPatch(patch); err != nil {
		return nil, err
	}
	s.stamp(doc, actor, time.Now().UTC())

	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, storeErr(err)
	}
	return doc, nil
}

// SoftDelete помечает документ удаленным. История версий не затрагивается.
func (s *DocumentService) SoftDelete(ctx context.Context, docID uuid.UUID, actor *domain.Principal) error {
	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return storeErr(err)
	}
	if !s.access.CanEdit(actor, doc) && !s.access.IsAdmin(actor) {
		return fmt.Errorf("%w: delete denied", domain.ErrForbidden)
	}
	if !doc.Active() {
		return fmt.Errorf("%w: document %s", domain.ErrAlreadyDeleted, docID)
	}

	now := time.Now().UTC()
	doc.DeletedAt = &now
	doc.DeletedBy = &actor.ID
	s.stamp(doc, actor, now)

	return storeErr(s.repo.Save(ctx, doc))
}

// Restore снимает пометку удаления с документа.
func (s *DocumentService) Restore(ctx context.Context, docID uuid.UUID, actor *domain.Principal) (*domain.Document, error) {
	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !s.access.CanEdit(actor, doc) && !s.access.IsAdmin(actor) {
		return nil, fmt.Errorf("%w: restore denied", domain.ErrForbidden)
	}
	if doc.Active() {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotDeleted, docID)
	}

	doc.DeletedAt = nil
	doc.DeletedBy = nil
	if doc.LatestPosition == nil {
		doc.RecomputeLatest()
	}
	s.stamp(doc, actor, time.Now().UTC())

	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, storeErr(err)
	}
	return doc, nil
}

// HardDelete удаляет запись документа полностью. Blob-объекты не удаляются
// синхронно: их подбирает фоновая очистка.
func (s *DocumentService) HardDelete(ctx context.Context, docID uuid.UUID, actor *domain.Principal) error {
	if !s.access.IsAdmin(actor) {
		return fmt.Errorf("%w: hard delete requires admin", domain.ErrForbidden)
	}
	return storeErr(s.repo.HardDelete(ctx, docID))
}

// SoftDeleteVersion помечает версию удаленной и пересчитывает latest.
func (s *DocumentService) SoftDeleteVersion(ctx context.Context, docID uuid.UUID, index int, actor *domain.Principal) error {
	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return storeErr(err)
	}
	if !s.access.CanEdit(actor, doc) {
		return fmt.Errorf("%w: edit denied", domain.ErrForbidden)
	}

	now := time.Now().UTC()
	if err := doc.SoftDeleteVersion(index, now, actor.ID); err != nil {
		return err
	}
	s.stamp(doc, actor, now)

	return storeErr(s.repo.Save(ctx, doc))
}

// RestoreVersion восстанавливает версию. setAsLatest делает ее текущей
// безусловно, даже при наличии более новой активной версии.
func (s *DocumentService) RestoreVersion(ctx context.Context, docID uuid.UUID, index int, setAsLatest bool, actor *domain.Principal) (*domain.Document, error) {
	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !s.access.CanEdit(actor, doc) {
		return nil, fmt.Errorf("%w: edit denied", domain.ErrForbidden)
	}

	if err := doc.RestoreVersion(index, setAsLatest); err != nil {
		return nil, err
	}
	s.stamp(doc, actor, time.Now().UTC())

	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, storeErr(err)
	}
	return doc, nil
}

// AddLink привязывает документ к внешней сущности. Существование сущности
// не проверяется, это ответственность вызывающей стороны.
func (s *DocumentService) AddLink(ctx context.Context, docID uuid.UUID, linkType, refID string, actor *domain.Principal) (*domain.Document, error) {
	ref, err := parseLinkRef(linkType, refID)
	if err != nil {
		return nil, err
	}

	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !s.access.CanEdit(actor, doc) {
		return nil, fmt.Errorf("%w: edit denied", domain.ErrForbidden)
	}

	// Повторная привязка той же пары — no-op
	if doc.Links.Add(linkType, ref) {
		s.stamp(doc, actor, time.Now().UTC())
		if err := s.repo.Save(ctx, doc); err != nil {
			return nil, storeErr(err)
		}
	}
	return doc, nil
}

// RemoveLink удаляет привязку. Отсутствие совпадений не считается ошибкой.
func (s *DocumentService) RemoveLink(ctx context.Context, docID uuid.UUID, linkType, refID string, actor *domain.Principal) (*domain.Document, error) {
	ref, err := parseLinkRef(linkType, refID)
	if err != nil {
		return nil, err
	}

	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !s.access.CanEdit(actor, doc) {
		return nil, fmt.Errorf("%w: edit denied", domain.ErrForbidden)
	}

	if doc.Links.Remove(linkType, ref) {
		s.stamp(doc, actor, time.Now().UTC())
		if err := s.repo.Save(ctx, doc); err != nil {
			return nil, storeErr(err)
		}
	}
	return doc, nil
}

// FetchLatest открывает поток содержимого текущей версии документа.
func (s *DocumentService) FetchLatest(ctx context.Context, scope domain.Scope, principal *domain.Principal, docID uuid.UUID) (s3.Object, *domain.Version, error) {
	doc, err := s.repo.GetByUUID(ctx, docID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	if !inScope(scope, doc) {
		return nil, nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, docID)
	}
	if !s.access.CanRead(principal, doc) {
		return nil, nil, fmt.Errorf("%w: read denied", domain.ErrForbidden)
	}

	latest := doc.Latest()
	if latest == nil {
		return nil, nil, fmt.Errorf("%w: document %s has no active version", domain.ErrNotFound, docID)
	}

	obj, err := s.blobs.Get(ctx, latest.BlobKey)
	if err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("%w: blob %s", domain.ErrNotFound, latest.BlobKey)
		}
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	return obj, latest, nil
}

// CleanupOrphans удаляет blob-объекты документов, стертых через hard delete.
// Запускается периодически из main.
func (s *DocumentService) CleanupOrphans(ctx context.Context) error {
	keys, err := s.repo.ListOrphans(ctx, orphanBatchSize)
	if err != nil {
		return storeErr(err)
	}

	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			// Логируем и продолжаем, ключ останется до следующего прохода
			log.Printf("warning: failed to delete orphaned blob %s: %v", key, err)
			continue
		}
		if err := s.repo.RemoveOrphan(ctx, key); err != nil {
			return storeErr(err)
		}
	}
	return nil
}

func (s *DocumentService) stamp(doc *domain.Document, actor *domain.Principal, at time.Time) {
	doc.UpdatedAt = at
	doc.UpdatedBy = actor.ID
}

func parseLinkRef(linkType, refID string) (uuid.UUID, error) {
	if linkType == "" {
		return uuid.Nil, fmt.Errorf("%w: link type is required", domain.ErrInvalidArgument)
	}
	ref, err := uuid.Parse(refID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed link reference %q", domain.ErrInvalidArgument, refID)
	}
	return ref, nil
}

func inScope(scope domain.Scope, doc *domain.Document) bool {
	if !scope.Filtered() {
		return true
	}
	return doc.TenantID != nil && *doc.TenantID == *scope.Tenant
}

// storeErr переводит сбои хранилища метаданных в StorageUnavailable,
// сохраняя NotFound как есть.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
