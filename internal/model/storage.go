package model

import "context"

// Ключи постоянного хранилища.
const (
	KeyCart     = "cart"
	KeyUsers    = "users"
	KeyAuthUser = "authUser"
	KeyOrders   = "orders"
)

// KVStore описывает постоянное хранилище строковых ключей и JSON-значений.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// KVWatcher реализуется хранилищами, которые умеют сообщать об изменениях ключей.
// Watch блокируется до отмены контекста.
type KVWatcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}
