package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Document — корневой агрегат хранилища документов.
// Владеет цепочкой версий, набором связей и конфигурацией доступа.
type Document struct {
	UUID           uuid.UUID      `json:"uuid" db:"uuid"`
	TenantID       *uuid.UUID     `json:"tenant_id,omitempty" db:"tenant_id"`
	Title          string         `json:"title" db:"title"`
	Folder         string         `json:"folder,omitempty" db:"folder"`
	Tags           pq.StringArray `json:"tags" db:"tags"`
	Access         AccessConfig   `json:"access" db:"access"`
	LatestPosition *int           `json:"latest_position,omitempty" db:"latest_position"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	CreatedBy      string         `json:"created_by" db:"created_by"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
	UpdatedBy      string         `json:"updated_by" db:"updated_by"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy      *string        `json:"deleted_by,omitempty" db:"deleted_by"`

	Versions VersionChain `json:"versions" db:"-"`
	Links    LinkSet      `json:"links" db:"-"`
}

// MetadataPatch — частичное обновление метаданных. Меняются только заданные поля.
type MetadataPatch struct {
	Title  *string       `json:"title,omitempty"`
	Folder *string       `json:"folder,omitempty"`
	Tags   *[]string     `json:"tags,omitempty"`
	Links  *[]Link       `json:"links,omitempty"`
	Access *AccessConfig `json:"access,omitempty"`
}

// Active сообщает, не удален ли документ.
func (d *Document) Active() bool {
	return d.DeletedAt == nil
}

// Latest возвращает снимок текущей версии или nil, если активных версий нет.
func (d *Document) Latest() *Version {
	if d.LatestPosition == nil {
		return nil
	}
	pos := *d.LatestPosition
	if pos < 0 || pos >= len(d.Versions) {
		return nil
	}
	v := d.Versions[pos]
	return &v
}

// RecomputeLatest пересчитывает указатель на текущую версию: скан от новых
// к старым до первой неудаленной записи. Вызывается после каждого изменения
// цепочки, которое могло инвалидировать указатель.
func (d *Document) RecomputeLatest() {
	for i := len(d.Versions) - 1; i >= 0; i-- {
		if d.Versions[i].Active() {
			pos := d.Versions[i].Position
			d.LatestPosition = &pos
			return
		}
	}
	d.LatestPosition = nil
}

// AppendVersion добавляет версию в конец цепочки и сразу пересчитывает latest.
func (d *Document) AppendVersion(v Version) {
	v.Position = len(d.Versions)
	v.DocumentUUID = d.UUID
	d.Versions = append(d.Versions, v)
	d.RecomputeLatest()
}

// SoftDeleteVersion помечает версию удаленной. Если удалена текущая версия
// (сравнение по позиции-идентичности, не по порядковому номеру запроса),
// latest пересчитывается.
func (d *Document) SoftDeleteVersion(index int, at time.Time, by string) error {
	if index < 0 || index >= len(d.Versions) {
		return fmt.Errorf("%w: version index %d", ErrNotFound, index)
	}
	v := &d.Versions[index]
	if !v.Active() {
		return fmt.Errorf("%w: version %d", ErrAlreadyDeleted, index)
	}

	v.DeletedAt = &at
	v.DeletedBy = &by

	if d.LatestPosition != nil && *d.LatestPosition == v.Position {
		d.RecomputeLatest()
	}
	return nil
}

// RestoreVersion снимает пометку удаления. При setAsLatest версия становится
// текущей безусловно, даже если есть более новая активная (явный "pin").
// Без setAsLatest пересчет выполняется только если latest не установлен.
func (d *Document) RestoreVersion(index int, setAsLatest bool) error {
	if index < 0 || index >= len(d.Versions) {
		return fmt.Errorf("%w: version index %d", ErrNotFound, index)
	}
	v := &d.Versions[index]
	if v.Active() {
		return fmt.Errorf("%w: version %d", ErrNotDeleted, index)
	}

	v.DeletedAt = nil
	v.DeletedBy = nil

	if setAsLatest {
		pos := v.Position
		d.LatestPosition = &pos
		return nil
	}
	if d.LatestPosition == nil {
		d.RecomputeLatest()
	}
	return nil
}

// ApplyPatch применяет частичное обновление метаданных.
func (d *Document) ApplyPatch(patch MetadataPatch) error {
	if patch.Title != nil {
		if *patch.Title == "" {
			return fmt.Errorf("%w: title cannot be empty", ErrInvalidArgument)
		}
		d.Title = *patch.Title
	}
	if patch.Folder != nil {
		d.Folder = *patch.Folder
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		d.Tags = pq.StringArray(tags)
	}
	if patch.Links != nil {
		links := make(LinkSet, 0, len(*patch.Links))
		for _, l := range *patch.Links {
			links.Add(l.Type, l.RefID)
		}
		d.Links = links
	}
	if patch.Access != nil {
		if !patch.Access.Valid() {
			return fmt.Errorf("%w: unknown visibility %q", ErrInvalidArgument, patch.Access.Visibility)
		}
		d.Access = *patch.Access
	}
	return nil
}
