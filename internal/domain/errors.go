package domain

import "errors"

// Виды ошибок ядра. Хендлеры сопоставляют их с HTTP статусами через errors.Is.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyDeleted     = errors.New("already deleted")
	ErrNotDeleted         = errors.New("not deleted")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
