package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_SetThenGetRoundTrips(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	err := store.Set(ctx, "snowflake", "warehouse-prod", "s3kr3t")
	assert.NoError(t, err)

	value, err := store.Get(ctx, "snowflake", "warehouse-prod")
	assert.NoError(t, err)
	assert.Equal(t, "s3kr3t", value)
}

func TestMemoryStore_GetMissingCredentialErrors(t *testing.T) {
	store := NewMemoryStore(0)
	_, err := store.Get(context.Background(), "redis", "cache-primary")
	assert.Error(t, err)
}

func TestMemoryStore_DeleteRemovesCredential(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	_ = store.Set(ctx, "snowflake", "warehouse-prod", "s3kr3t")

	err := store.Delete(ctx, "snowflake", "warehouse-prod")
	assert.NoError(t, err)

	_, err = store.Get(ctx, "snowflake", "warehouse-prod")
	assert.Error(t, err)
}

func TestMemoryStore_DeleteAbsentKeyDoesNotError(t *testing.T) {
	store := NewMemoryStore(0)
	err := store.Delete(context.Background(), "snowflake", "does-not-exist")
	assert.NoError(t, err)
}

func TestMemoryStore_ExpiredCredentialIsTreatedAsAbsent(t *testing.T) {
	store := NewMemoryStore(1 * time.Millisecond)
	ctx := context.Background()
	_ = store.Set(ctx, "snowflake", "warehouse-prod", "s3kr3t")

	time.Sleep(5 * time.Millisecond)

	_, err := store.Get(ctx, "snowflake", "warehouse-prod")
	assert.Error(t, err)
}

func TestMemoryStore_ListReturnsStoredKeys(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	_ = store.Set(ctx, "snowflake", "warehouse-prod", "s3kr3t")
	_ = store.Set(ctx, "redis", "cache-primary", "anothersecret")

	keys := store.List(ctx)
	assert.ElementsMatch(t, []string{"snowflake/warehouse-prod", "redis/cache-primary"}, keys)
}

func TestMemoryStore_SatisfiesStoreInterface(t *testing.T) {
	var _ Store = NewMemoryStore(0)
}
