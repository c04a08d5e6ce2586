// storage.go
package s3

import (
	"context"
	"io"
)

// Object определяет интерфейс для содержимого, прочитанного из хранилища.
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// object реализует интерфейс Object
type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}

// Storage определяет контракт blob-хранилища, от которого зависит ядро.
// Put пишет поток и возвращает непрозрачный ключ; одинаковые потоки получают
// разные ключи, дедупликации нет. Delete best-effort: отсутствие объекта
// не считается ошибкой.
type Storage interface {
	Put(ctx context.Context, r io.Reader, contentType string) (string, error)
	Get(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
}
