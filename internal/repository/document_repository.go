package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"vaultdrive/internal/domain"
)

type DocumentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO documents (uuid, tenant_id, title, folder, tags, access, latest_position, created_by, updated_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
        RETURNING created_at, updated_at`

	err = tx.QueryRowContext(
		ctx,
		query,
		doc.UUID,
		doc.TenantID,
		doc.Title,
		doc.Folder,
		doc.Tags,
		doc.Access,
		doc.LatestPosition,
		doc.CreatedBy,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for i := range doc.Versions {
		if err := insertVersion(ctx, tx, &doc.Versions[i]); err != nil {
			return err
		}
	}

	if err := replaceLinks(ctx, tx, doc.UUID, doc.Links); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *DocumentRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	query := `SELECT * FROM documents WHERE uuid = $1`

	err := r.db.GetContext(ctx, &doc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if err := r.loadAggregate(ctx, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Save сохраняет состояние агрегата целиком в одной транзакции.
// Проверок версионности нет: последняя запись побеждает.
func (r *DocumentRepository) Save(ctx context.Context, doc *domain.Document) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        UPDATE documents
        SET title = $1,
            folder = $2,
            tags = $3,
            access = $4,
            latest_position = $5,
            updated_at = $6,
            updated_by = $7,
            deleted_at = $8,
            deleted_by = $9
        WHERE uuid = $10`

	result, err := tx.ExecContext(
		ctx,
		query,
		doc.Title,
		doc.Folder,
		doc.Tags,
		doc.Access,
		doc.LatestPosition,
		doc.UpdatedAt,
		doc.UpdatedBy,
		doc.DeletedAt,
		doc.DeletedBy,
		doc.UUID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, doc.UUID)
	}

	for i := range doc.Versions {
		v := &doc.Versions[i]
		if v.ID == 0 {
			if err := insertVersion(ctx, tx, v); err != nil {
				return err
			}
			continue
		}

		// Существующие версии неизменяемы, кроме пометки удаления
		_, err := tx.ExecContext(
			ctx,
			`UPDATE document_versions SET deleted_at = $1, deleted_by = $2 WHERE id = $3`,
			v.DeletedAt,
			v.DeletedBy,
			v.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update version %d: %w", v.Position, err)
		}
	}

	if err := replaceLinks(ctx, tx, doc.UUID, doc.Links); err != nil {
		return err
	}

	return tx.Commit()
}

// HardDelete удаляет запись документа полностью. Ключи blob-объектов
// складываются в blob_orphans для фоновой очистки хранилища.
func (r *DocumentRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO blob_orphans (blob_key)
        SELECT blob_key FROM document_versions WHERE document_uuid = $1
        ON CONFLICT (blob_key) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("failed to record orphaned blobs: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}

	return tx.Commit()
}

// List выполняет выборку по области тенанта и структурным фильтрам.
// ACL-фильтрация выполняется после, на уровне сервиса каталога.
func (r *DocumentRepository) List(ctx context.Context, scope domain.Scope, filter domain.DirectoryFilter) ([]domain.Document, error) {
	conditions := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if scope.Filtered() {
		conditions = append(conditions, "d.tenant_id = "+arg(*scope.Tenant))
	}
	if !filter.IncludeDeleted {
		conditions = append(conditions, "d.deleted_at IS NULL")
	}
	if filter.Query != "" {
		conditions = append(conditions, "d.title ILIKE "+arg("%"+filter.Query+"%"))
	}
	if filter.Tag != "" {
		conditions = append(conditions, arg(filter.Tag)+" = ANY(d.tags)")
	}
	if filter.Folder != "" {
		conditions = append(conditions, "d.folder = "+arg(filter.Folder))
	}
	if filter.Uploader != "" {
		conditions = append(conditions, "d.created_by = "+arg(filter.Uploader))
	}
	if filter.From != nil {
		conditions = append(conditions, "d.created_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "d.created_at <= "+arg(*filter.To))
	}
	if filter.LinkedTo != nil || filter.LinkedType != "" {
		linkCond := "SELECT 1 FROM document_links l WHERE l.document_uuid = d.uuid"
		if filter.LinkedType != "" {
			linkCond += " AND l.link_type = " + arg(filter.LinkedType)
		}
		if filter.LinkedTo != nil {
			linkCond += " AND l.ref_id = " + arg(*filter.LinkedTo)
		}
		conditions = append(conditions, "EXISTS ("+linkCond+")")
	}

	query := `SELECT d.* FROM documents d`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY d.updated_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	var docs []domain.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	for i := range docs {
		if err := r.loadAggregate(ctx, &docs[i]); err != nil {
			return nil, err
		}
	}

	return docs, nil
}

// ListOrphans возвращает ключи blob-объектов, оставшиеся после hard delete.
func (r *DocumentRepository) ListOrphans(ctx context.Context, limit int) ([]string, error) {
	var keys []string
	query := `SELECT blob_key FROM blob_orphans ORDER BY orphaned_at LIMIT $1`

	if err := r.db.SelectContext(ctx, &keys, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list orphaned blobs: %w", err)
	}
	return keys, nil
}

func (r *DocumentRepository) RemoveOrphan(ctx context.Context, blobKey string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blob_orphans WHERE blob_key = $1`, blobKey); err != nil {
		return fmt.Errorf("failed to remove orphan record: %w", err)
	}
	return nil
}

func (r *DocumentRepository) loadAggregate(ctx context.Context, doc *domain.Document) error {
	var versions []domain.Version
	query := `SELECT * FROM document_versions WHERE document_uuid = $1 ORDER BY position`

	if err := r.db.SelectContext(ctx, &versions, query, doc.UUID); err != nil {
		return fmt.Errorf("failed to load versions: %w", err)
	}
	doc.Versions = versions

	var links []domain.Link
	query = `SELECT link_type, ref_id FROM document_links WHERE document_uuid = $1 ORDER BY link_type, ref_id`

	if err := r.db.SelectContext(ctx, &links, query, doc.UUID); err != nil {
		return fmt.Errorf("failed to load links: %w", err)
	}
	doc.Links = links

	return nil
}

func insertVersion(ctx context.Context, tx *sqlx.Tx, v *domain.Version) error {
	query := `
        INSERT INTO document_versions (document_uuid, position, filename, mime_type, size_bytes, checksum, blob_key, uploaded_at, uploaded_by, deleted_at, deleted_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id`

	err := tx.QueryRowContext(
		ctx,
		query,
		v.DocumentUUID,
		v.Position,
		v.Filename,
		v.MIMEType,
		v.SizeBytes,
		v.Checksum,
		v.BlobKey,
		v.UploadedAt,
		v.UploadedBy,
		v.DeletedAt,
		v.DeletedBy,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to insert version %d: %w", v.Position, err)
	}
	return nil
}

func replaceLinks(ctx context.Context, tx *sqlx.Tx, docUUID uuid.UUID, links domain.LinkSet) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_links WHERE document_uuid = $1`, docUUID); err != nil {
		return fmt.Errorf("failed to clear links: %w", err)
	}

	for _, l := range links {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO document_links (document_uuid, link_type, ref_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			docUUID,
			l.Type,
			l.RefID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
	}
	return nil
}
