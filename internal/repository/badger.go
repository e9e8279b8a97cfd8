package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"

	"github.com/mmeshcher/storefront/internal/model"
)

const badgerKeyPrefix = "storefront/"

var (
	_ model.KVStore   = (*BadgerStore)(nil)
	_ model.KVWatcher = (*BadgerStore)(nil)
)

// BadgerStore хранит значения во встроенной базе badger.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore открывает базу badger в каталоге dir. Пустой dir открывает базу в памяти.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// Get возвращает значение по ключу.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return value, true, nil
}

// Set записывает значение по ключу.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+key), value)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Delete удаляет ключ.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Watch подписывается на изменения ключей витрины до отмены контекста.
func (s *BadgerStore) Watch(ctx context.Context, fn func(key string)) error {
	err := s.db.Subscribe(ctx, func(list *pb.KVList) error {
		for _, kv := range list.Kv {
			fn(string(kv.Key[len(badgerKeyPrefix):]))
		}
		return nil
	}, []pb.Match{{Prefix: []byte(badgerKeyPrefix)}})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("badger subscribe: %w", err)
	}
	return nil
}

// Close закрывает базу.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
