package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront/internal/model"
)

type failingStore struct {
	*MemoryStore
}

func (f failingStore) Set(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

func TestSetJSON_WrapsPersistenceError(t *testing.T) {
	err := SetJSON(context.Background(), failingStore{NewMemoryStore()}, model.KeyCart, []int{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersistenceWrite)
}

func TestGetJSON(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var dst []string
	ok, err := GetJSON(ctx, s, "missing", &dst)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, s, "list", []string{"a", "b"}))
	ok, err = GetJSON(ctx, s, "list", &dst)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, dst)

	require.NoError(t, s.Set(ctx, "broken", []byte("{")))
	ok, err = GetJSON(ctx, s, "broken", &dst)
	assert.True(t, ok)
	assert.Error(t, err)
}
