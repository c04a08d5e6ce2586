package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultdrive/internal/domain"
	"vaultdrive/internal/service/s3"
)

// -------- test fakes --------

type memStore struct {
	docs    map[uuid.UUID]*domain.Document
	orphans []string
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[uuid.UUID]*domain.Document)}
}

func cloneDoc(d *domain.Document) *domain.Document {
	out := *d
	if d.TenantID != nil {
		id := *d.TenantID
		out.TenantID = &id
	}
	if d.LatestPosition != nil {
		pos := *d.LatestPosition
		out.LatestPosition = &pos
	}
	out.Tags = append([]string(nil), d.Tags...)
	out.Versions = append(domain.VersionChain(nil), d.Versions...)
	out.Links = append(domain.LinkSet(nil), d.Links...)
	return &out
}

func (m *memStore) Create(ctx context.Context, doc *domain.Document) error {
	for i := range doc.Versions {
		m.nextID++
		doc.Versions[i].ID = m.nextID
	}
	m.docs[doc.UUID] = cloneDoc(doc)
	return nil
}

func (m *memStore) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	return cloneDoc(doc), nil
}

func (m *memStore) Save(ctx context.Context, doc *domain.Document) error {
	if _, ok := m.docs[doc.UUID]; !ok {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, doc.UUID)
	}
	for i := range doc.Versions {
		if doc.Versions[i].ID == 0 {
			m.nextID++
			doc.Versions[i].ID = m.nextID
		}
	}
	m.docs[doc.UUID] = cloneDoc(doc)
	return nil
}

func (m *memStore) HardDelete(ctx context.Context, id uuid.UUID) error {
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	for _, v := range doc.Versions {
		m.orphans = append(m.orphans, v.BlobKey)
	}
	delete(m.docs, id)
	return nil
}

func (m *memStore) List(ctx context.Context, scope domain.Scope, filter domain.DirectoryFilter) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range m.docs {
		if scope.Filtered() && (doc.TenantID == nil || *doc.TenantID != *scope.Tenant) {
			continue
		}
		if !filter.IncludeDeleted && !doc.Active() {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(doc.Title), strings.ToLower(filter.Query)) {
			continue
		}
		if filter.Uploader != "" && doc.CreatedBy != filter.Uploader {
			continue
		}
		if filter.Tag != "" {
			found := false
			for _, tag := range doc.Tags {
				if tag == filter.Tag {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, *cloneDoc(doc))
	}
	return out, nil
}

func (m *memStore) ListOrphans(ctx context.Context, limit int) ([]string, error) {
	if len(m.orphans) > limit {
		return m.orphans[:limit], nil
	}
	return m.orphans, nil
}

func (m *memStore) RemoveOrphan(ctx context.Context, blobKey string) error {
	out := m.orphans[:0]
	for _, key := range m.orphans {
		if key != blobKey {
			out = append(out, key)
		}
	}
	m.orphans = out
	return nil
}

type memObject struct {
	io.ReadCloser
	length int64
	ctype  string
}

func (o *memObject) ContentLength() int64 { return o.length }
func (o *memObject) ContentType() string  { return o.ctype }

type memBlobs struct {
	objects map[string][]byte
	putErr  error
	seq     int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (m *memBlobs) Put(ctx context.Context, r io.Reader, contentType string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.seq++
	key := fmt.Sprintf("mem/%d", m.seq)
	m.objects[key] = data
	return key, nil
}

func (m *memBlobs) Get(ctx context.Context, key string) (s3.Object, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", s3.ErrObjectNotFound, key)
	}
	return &memObject{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		length:     int64(len(data)),
	}, nil
}

func (m *memBlobs) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

// -------- helpers --------

func newTestService() (*DocumentService, *memStore, *memBlobs) {
	store := newMemStore()
	blobs := newMemBlobs()
	return NewDocumentService(store, blobs, NewAccessEvaluator()), store, blobs
}

var (
	creator  = &domain.Principal{ID: "u1", Role: "member", TenantID: "t"}
	stranger = &domain.Principal{ID: "u9", Role: "member", TenantID: "t"}
	admin    = &domain.Principal{ID: "root", Role: "admin"}
)

func mustCreate(t *testing.T, svc *DocumentService, in CreateDocumentInput) *domain.Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	return doc
}

func mustAddVersion(t *testing.T, svc *DocumentService, docID uuid.UUID, content string, actor *domain.Principal) *domain.Document {
	t.Helper()
	doc, err := svc.AddVersion(context.Background(), docID, VersionUpload{
		Content:  strings.NewReader(content),
		Filename: "doc.pdf",
		MIMEType: "application/pdf",
	}, actor)
	require.NoError(t, err)
	return doc
}

// -------- tests --------

func TestCreateDocumentDefaults(t *testing.T) {
	svc, store, _ := newTestService()

	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Договор", CreatedBy: "u1"})

	assert.Equal(t, domain.VisibilityOrg, doc.Access.Visibility)
	assert.Equal(t, []string{"u1"}, doc.Access.Owners)
	assert.Equal(t, "u1", doc.UpdatedBy)
	assert.Contains(t, store.docs, doc.UUID)
}

func TestCreateDocumentValidation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateDocumentInput{Title: "", CreatedBy: "u1"})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = svc.Create(context.Background(), CreateDocumentInput{
		Title:     "x",
		CreatedBy: "u1",
		Access:    &domain.AccessConfig{Visibility: "secret"},
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestAddVersion(t *testing.T) {
	svc, store, blobs := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1"})

	content := "hello vault"
	updated := mustAddVersion(t, svc, doc.UUID, content, creator)

	require.Len(t, updated.Versions, 1)
	v := updated.Versions[0]
	assert.Equal(t, int64(len(content)), v.SizeBytes)

	sum := sha256.Sum256([]byte(content))
	require.NotNil(t, v.Checksum)
	assert.Equal(t, hex.EncodeToString(sum[:]), *v.Checksum)

	require.NotNil(t, updated.Latest())
	assert.Equal(t, 0, updated.Latest().Position)
	assert.Equal(t, []byte(content), blobs.objects[v.BlobKey])

	// Вторая версия становится текущей
	updated = mustAddVersion(t, svc, doc.UUID, "second", creator)
	assert.Equal(t, 1, updated.Latest().Position)

	// Указатель сохранен в хранилище, а не вычислен при чтении
	stored := store.docs[doc.UUID]
	require.NotNil(t, stored.LatestPosition)
	assert.Equal(t, 1, *stored.LatestPosition)
}

func TestAddVersionForbidden(t *testing.T) {
	svc, _, _ := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{
		Title:     "Личный",
		CreatedBy: "u1",
		Access:    &domain.AccessConfig{Visibility: domain.VisibilityPrivate, Owners: []string{"u1"}},
	})

	_, err := svc.AddVersion(context.Background(), doc.UUID, VersionUpload{
		Content:  strings.NewReader("x"),
		Filename: "x.txt",
	}, stranger)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestAddVersionStorageUnavailable(t *testing.T) {
	svc, _, blobs := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1"})

	blobs.putErr = errors.New("connection refused")

	_, err := svc.AddVersion(context.Background(), doc.UUID, VersionUpload{
		Content:  strings.NewReader("x"),
		Filename: "x.txt",
	}, creator)
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable))
}

func TestSoftDeleteVersionRecomputesThroughService(t *testing.T) {
	svc, store, _ := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1"})
	mustAddVersion(t, svc, doc.UUID, "v0", creator)
	mustAddVersion(t, svc, doc.UUID, "v1", creator)
	mustAddVersion(t, svc, doc.UUID, "v2", creator)

	require.NoError(t, svc.SoftDeleteVersion(context.Background(), doc.UUID, 2, creator))

	stored := store.docs[doc.UUID]
	require.NotNil(t, stored.LatestPosition)
	assert.Equal(t, 1, *stored.LatestPosition)

	// Повторное удаление той же версии — ошибка состояния
	err := svc.SoftDeleteVersion(context.Background(), doc.UUID, 2, creator)
	assert.True(t, errors.Is(err, domain.ErrAlreadyDeleted))

	// Невалидный индекс
	err = svc.SoftDeleteVersion(context.Background(), doc.UUID, 10, creator)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRestoreVersionPinnedThroughService(t *testing.T) {
	svc, store, _ := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1"})
	mustAddVersion(t, svc, doc.UUID, "v0", creator)
	mustAddVersion(t, svc, doc.UUID, "v1", creator)

	require.NoError(t, svc.SoftDeleteVersion(context.Background(), doc.UUID, 0, creator))

	restored, err := svc.RestoreVersion(context.Background(), doc.UUID, 0, true, creator)
	require.NoError(t, err)

	// v0 закреплена как текущая, хотя v1 новее и активна
	require.NotNil(t, restored.Latest())
	assert.Equal(t, 0, restored.Latest().Position)

	stored := store.docs[doc.UUID]
	require.NotNil(t, stored.LatestPosition)
	assert.Equal(t, 0, *stored.LatestPosition)
}

func TestDocumentSoftDeleteAndRestore(t *testing.T) {
	svc, _, _ := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1"})
	mustAddVersion(t, svc, doc.UUID, "v0", creator)

	require.NoError(t, svc.SoftDelete(context.Background(), doc.UUID, creator))

	err := svc.SoftDelete(context.Background(), doc.UUID, creator)
	assert.True(t, errors.Is(err, domain.ErrAlreadyDeleted))

	restored, err := svc.Restore(context.Background(), doc.UUID, creator)
	require.NoError(t, err)
	assert.True(t, restored.Active())
	require.NotNil(t, restored.Latest())
	assert.Equal(t, 0, restored.Latest().Position)

	_, err = svc.Restore(context.Background(), doc.UUID, creator)
	assert.True(t, errors.Is(err, domain.ErrNotDeleted))
}

func TestHardDeleteRequiresAdmin(t *testing.T) {
	svc, store, _ := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1"})
	mustAddVersion(t, svc, doc.UUID, "v0", creator)

	err := svc.HardDelete(context.Background(), doc.UUID, creator)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	require.NoError(t, svc.HardDelete(context.Background(), doc.UUID, admin))
	assert.NotContains(t, store.docs, doc.UUID)
	assert.Len(t, store.orphans, 1)
}

func TestCleanupOrphans(t *testing.T) {
	svc, store, blobs := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1"})
	updated := mustAddVersion(t, svc, doc.UUID, "v0", creator)
	blobKey := updated.Versions[0].BlobKey

	require.NoError(t, svc.HardDelete(context.Background(), doc.UUID, admin))
	require.Contains(t, blobs.objects, blobKey)

	require.NoError(t, svc.CleanupOrphans(context.Background()))

	assert.NotContains(t, blobs.objects, blobKey)
	assert.Empty(t, store.orphans)
}

func TestLinks(t *testing.T) {
	svc, store, _ := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1"})
	ref := uuid.New()

	_, err := svc.AddLink(context.Background(), doc.UUID, "project", "not-an-id", creator)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = svc.AddLink(context.Background(), doc.UUID, "", ref.String(), creator)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	updated, err := svc.AddLink(context.Background(), doc.UUID, "project", ref.String(), creator)
	require.NoError(t, err)
	assert.Len(t, updated.Links, 1)

	// Повторное добавление — no-op
	updated, err = svc.AddLink(context.Background(), doc.UUID, "project", ref.String(), creator)
	require.NoError(t, err)
	assert.Len(t, updated.Links, 1)
	assert.Len(t, store.docs[doc.UUID].Links, 1)

	updated, err = svc.RemoveLink(context.Background(), doc.UUID, "project", ref.String(), creator)
	require.NoError(t, err)
	assert.Empty(t, updated.Links)
}

func TestUpdateMetadataPartial(t *testing.T) {
	svc, _, _ := newTestService()
	doc := mustCreate(t, svc, CreateDocumentInput{
		Title:     "Отчет",
		Folder:    "/reports",
		Tags:      []string{"2024"},
		CreatedBy: "u1",
	})

	title := "Отчет (финал)"
	updated, err := svc.UpdateMetadata(context.Background(), doc.UUID, domain.MetadataPatch{Title: &title}, creator)
	require.NoError(t, err)

	assert.Equal(t, title, updated.Title)
	assert.Equal(t, "/reports", updated.Folder)
	assert.Equal(t, []string{"2024"}, []string(updated.Tags))

	_, err = svc.UpdateMetadata(context.Background(), doc.UUID, domain.MetadataPatch{Title: &title}, stranger)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestFetchLatest(t *testing.T) {
	svc, _, _ := newTestService()
	tenant := uuid.New()
	doc := mustCreate(t, svc, CreateDocumentInput{Title: "Отчет", CreatedBy: "u1", TenantID: &tenant})

	// Без активных версий содержимого нет
	_, _, err := svc.FetchLatest(context.Background(), domain.Scope{}, creator, doc.UUID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	mustAddVersion(t, svc, doc.UUID, "payload", creator)

	obj, version, err := svc.FetchLatest(context.Background(), domain.TenantScope(tenant), creator, doc.UUID)
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, "doc.pdf", version.Filename)

	// Чужая область тенанта неотличима от отсутствия документа
	otherTenant := uuid.New()
	_, _, err = svc.FetchLatest(context.Background(), domain.TenantScope(otherTenant), creator, doc.UUID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
