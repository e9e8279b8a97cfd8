package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmeshcher/storefront/internal/model"
)

// GetJSON читает значение по ключу и декодирует его в dst. Возвращает false, если ключа нет.
func GetJSON(ctx context.Context, store model.KVStore, key string, dst any) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON кодирует value и записывает его по ключу. Ошибка записи оборачивается в model.ErrPersistenceWrite.
func SetJSON(ctx context.Context, store model.KVStore, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("%w: %s: %w", model.ErrPersistenceWrite, key, err)
	}
	return nil
}
