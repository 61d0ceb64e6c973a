package rediscache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/incentive/store"
)

// countingDirectory counts hierarchy lookups that reach the backing store.
type countingDirectory struct {
	incentive.Directory
	hierarchyCalls int
}

func (c *countingDirectory) GetHierarchy(ctx context.Context, id incentive.DepartmentID) ([]incentive.Department, error) {
	c.hierarchyCalls++
	return c.Directory.GetHierarchy(ctx, id)
}

func newTestCache(t *testing.T) (*Directory, *countingDirectory) {
	t.Helper()
	addr := os.Getenv("INCENTIVE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INCENTIVE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	backing := &countingDirectory{Directory: store.NewMemory()}
	root := incentive.DepartmentID("root")
	require.NoError(t, backing.PutDepartment(ctx, incentive.Department{ID: root, ManagerID: "ceo"}))
	require.NoError(t, backing.PutDepartment(ctx, incentive.Department{ID: "sales", ManagerID: "vp", ParentID: &root}))

	prefix := fmt.Sprintf("incentive-test:%d:", time.Now().UnixNano())
	cache := New(backing, client, WithPrefix(prefix), WithTTL(time.Minute))
	t.Cleanup(func() { cache.Invalidate(context.Background()) })
	return cache, backing
}

func TestDirectory_HierarchyServedFromCache(t *testing.T) {
	// GIVEN: an empty cache
	ctx := context.Background()
	cache, backing := newTestCache(t)

	// WHEN: the chain is read twice
	first, err := cache.GetHierarchy(ctx, "sales")
	require.NoError(t, err)
	second, err := cache.GetHierarchy(ctx, "sales")
	require.NoError(t, err)

	// THEN: only the first read reaches the store
	assert.Equal(t, 1, backing.hierarchyCalls)
	assert.Equal(t, first, second)
	require.Len(t, second, 2)
	require.NotNil(t, second[0].ParentID)
	assert.Equal(t, incentive.DepartmentID("root"), *second[0].ParentID)
}

func TestDirectory_PutDepartmentInvalidates(t *testing.T) {
	ctx := context.Background()
	cache, backing := newTestCache(t)

	_, err := cache.GetHierarchy(ctx, "sales")
	require.NoError(t, err)
	dept, err := cache.GetDepartment(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, "ceo", dept.ManagerID)

	require.NoError(t, cache.PutDepartment(ctx, incentive.Department{ID: "root", ManagerID: "new-ceo"}))

	chain, err := cache.GetHierarchy(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.hierarchyCalls)
	assert.Equal(t, "new-ceo", chain[1].ManagerID)

	dept, err = cache.GetDepartment(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, "new-ceo", dept.ManagerID)
}

func TestDirectory_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	_, err := cache.GetDepartment(ctx, "missing")
	assert.True(t, incentive.IsNotFound(err))

	_, err = cache.client.Get(ctx, cache.departmentKey("missing")).Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestDirectory_UnreachableRedisFallsThrough(t *testing.T) {
	// GIVEN: a client pointing at nothing
	ctx := context.Background()
	backing := &countingDirectory{Directory: store.NewMemory()}
	require.NoError(t, backing.PutDepartment(ctx, incentive.Department{ID: "solo", ManagerID: "m"}))
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	cache := New(backing, client)

	// WHEN: a hierarchy is read
	chain, err := cache.GetHierarchy(ctx, "solo")

	// THEN: the store answers
	require.NoError(t, err)
	assert.Len(t, chain, 1)
	assert.Equal(t, 1, backing.hierarchyCalls)
}
