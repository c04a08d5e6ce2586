package domain

import "github.com/google/uuid"

// Link связывает документ с внешней сущностью (проект, задача, объект и т.д.).
// Тип — произвольная строковая метка, существование сущности ядро не проверяет.
type Link struct {
	Type  string    `json:"type" db:"link_type"`
	RefID uuid.UUID `json:"ref_id" db:"ref_id"`
}

// LinkSet хранит связи документа с дедупликацией по паре (type, ref_id).
type LinkSet []Link

// Add добавляет связь. Повторное добавление той же пары ничего не меняет.
func (s *LinkSet) Add(linkType string, refID uuid.UUID) bool {
	for _, l := range *s {
		if l.Type == linkType && l.RefID == refID {
			return false
		}
	}
	*s = append(*s, Link{Type: linkType, RefID: refID})
	return true
}

// Remove удаляет все связи с указанной парой. Отсутствие совпадений не ошибка.
func (s *LinkSet) Remove(linkType string, refID uuid.UUID) bool {
	out := (*s)[:0]
	removed := false
	for _, l := range *s {
		if l.Type == linkType && l.RefID == refID {
			removed = true
			continue
		}
		out = append(out, l)
	}
	*s = out
	return removed
}

// Query возвращает связи, подходящие под фильтры. Оба фильтра опциональны
// и комбинируются через AND.
func (s LinkSet) Query(linkType string, refID *uuid.UUID) []Link {
	var result []Link
	for _, l := range s {
		if linkType != "" && l.Type != linkType {
			continue
		}
		if refID != nil && l.RefID != *refID {
			continue
		}
		result = append(result, l)
	}
	return result
}
