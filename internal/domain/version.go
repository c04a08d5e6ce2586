package domain

import (
	"time"

	"github.com/google/uuid"
)

// Version — неизменяемая после создания запись в цепочке версий документа.
// Мягкое удаление только скрывает версию из выдачи, blob остается в хранилище.
type Version struct {
	ID           int64      `json:"id" db:"id"`
	DocumentUUID uuid.UUID  `json:"document_uuid" db:"document_uuid"`
	Position     int        `json:"position" db:"position"`
	Filename     string     `json:"filename" db:"filename"`
	MIMEType     string     `json:"mime_type" db:"mime_type"`
	SizeBytes    int64      `json:"size_bytes" db:"size_bytes"`
	Checksum     *string    `json:"checksum,omitempty" db:"checksum"`
	BlobKey      string     `json:"blob_key" db:"blob_key"`
	UploadedAt   time.Time  `json:"uploaded_at" db:"uploaded_at"`
	UploadedBy   string     `json:"uploaded_by" db:"uploaded_by"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy    *string    `json:"deleted_by,omitempty" db:"deleted_by"`
}

// Active сообщает, не удалена ли версия.
func (v Version) Active() bool {
	return v.DeletedAt == nil
}

// VersionChain — упорядоченная append-only последовательность версий.
// Позиция в цепочке неизменна и служит идентичностью записи.
type VersionChain []Version
