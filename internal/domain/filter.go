package domain

import (
	"time"

	"github.com/google/uuid"
)

// DirectoryFilter — структурные фильтры каталога документов.
// Все поля опциональны и комбинируются через AND.
type DirectoryFilter struct {
	Query          string     `json:"query,omitempty"`  // подстрока в названии
	Tag            string     `json:"tag,omitempty"`    // точное совпадение тега
	Folder         string     `json:"folder,omitempty"` // точное совпадение папки
	LinkedType     string     `json:"linked_type,omitempty"`
	LinkedTo       *uuid.UUID `json:"linked_to,omitempty"`
	Uploader       string     `json:"uploader,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
	IncludeDeleted bool       `json:"include_deleted,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}
