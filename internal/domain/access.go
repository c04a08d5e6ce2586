package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type Visibility string

const (
	VisibilityOrg        Visibility = "org"
	VisibilityPrivate    Visibility = "private"
	VisibilityRestricted Visibility = "restricted"
)

// AccessConfig описывает правила доступа к документу.
// Отсутствующая конфигурация (легаси-документы) трактуется как видимость "org".
type AccessConfig struct {
	Visibility Visibility `json:"visibility"`
	Owners     []string   `json:"owners,omitempty"`
	Viewers    []string   `json:"viewers,omitempty"`
}

// EffectiveVisibility возвращает видимость с учетом легаси-документов без конфигурации.
func (a AccessConfig) EffectiveVisibility() Visibility {
	switch a.Visibility {
	case VisibilityPrivate, VisibilityRestricted:
		return a.Visibility
	default:
		return VisibilityOrg
	}
}

// HasOwner проверяет, входит ли пользователь в список владельцев.
func (a AccessConfig) HasOwner(principalID string) bool {
	for _, id := range a.Owners {
		if id == principalID {
			return true
		}
	}
	return false
}

// HasViewer проверяет, входит ли пользователь в список наблюдателей.
func (a AccessConfig) HasViewer(principalID string) bool {
	for _, id := range a.Viewers {
		if id == principalID {
			return true
		}
	}
	return false
}

// Valid проверяет конфигурацию при создании и обновлении документа.
func (a AccessConfig) Valid() bool {
	switch a.Visibility {
	case VisibilityOrg, VisibilityPrivate, VisibilityRestricted, "":
		return true
	default:
		return false
	}
}

// Value сериализует конфигурацию в jsonb колонку.
func (a AccessConfig) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan читает конфигурацию из jsonb колонки. NULL дает пустую конфигурацию,
// которая резолвится в видимость "org".
func (a *AccessConfig) Scan(src interface{}) error {
	if src == nil {
		*a = AccessConfig{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported access config source type %T", src)
	}

	if len(data) == 0 {
		*a = AccessConfig{}
		return nil
	}
	return json.Unmarshal(data, a)
}
