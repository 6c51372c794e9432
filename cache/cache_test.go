package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	ttl := 5 * time.Minute
	c := NewMemory(ttl)

	assert.NotNil(t, c)
	assert.Equal(t, ttl, c.ttl)
	assert.NotNil(t, c.logger)
}

func TestMemory_SetAndGet(t *testing.T) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()

	c.Set(ctx, "stats", []byte(`{"cases":73}`))
	data, ok := c.Get(ctx, "stats")

	assert.True(t, ok)
	assert.Equal(t, []byte(`{"cases":73}`), data)
}

func TestMemory_GetNonExistent(t *testing.T) {
	c := NewMemory(5 * time.Minute)

	data, ok := c.Get(context.Background(), "nonexistent")

	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestMemory_Expiration(t *testing.T) {
	// Короткий TTL для быстрого теста
	c := NewMemory(100 * time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "stats", []byte("payload"))

	// Сразу после установки значение должно быть
	_, ok := c.Get(ctx, "stats")
	assert.True(t, ok)

	// Ждем истечения TTL
	time.Sleep(150 * time.Millisecond)

	data, ok := c.Get(ctx, "stats")
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestMemory_Delete(t *testing.T) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()

	c.Set(ctx, "news", []byte("payload"))
	_, ok := c.Get(ctx, "news")
	assert.True(t, ok)

	c.Delete("news")

	_, ok = c.Get(ctx, "news")
	assert.False(t, ok)
}

func TestMemory_Clear(t *testing.T) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()

	c.Set(ctx, "stats", []byte("1"))
	c.Set(ctx, "graph", []byte("2"))
	c.Set(ctx, "news", []byte("3"))
	assert.Equal(t, 3, c.Size())

	c.Clear(ctx)

	assert.Equal(t, 0, c.Size())
	_, ok := c.Get(ctx, "stats")
	assert.False(t, ok)
}

func TestMemory_Size(t *testing.T) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()

	assert.Equal(t, 0, c.Size())

	c.Set(ctx, "a", []byte("1"))
	assert.Equal(t, 1, c.Size())

	c.Set(ctx, "b", []byte("2"))
	assert.Equal(t, 2, c.Size())

	c.Delete("a")
	assert.Equal(t, 1, c.Size())
}

func TestMemory_SizeWithExpiredEntries(t *testing.T) {
	c := NewMemory(100 * time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))
	assert.Equal(t, 2, c.Size())

	time.Sleep(150 * time.Millisecond)

	// Size удаляет истекшие записи и возвращает 0
	assert.Equal(t, 0, c.Size())
}

func TestMemory_Cleanup(t *testing.T) {
	c := NewMemory(100 * time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))

	time.Sleep(150 * time.Millisecond)
	c.Cleanup()

	assert.Equal(t, 0, c.Size())
}

func TestMemory_UpdateValue(t *testing.T) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()

	c.Set(ctx, "stats", []byte("old"))
	c.Set(ctx, "stats", []byte("new"))

	data, ok := c.Get(ctx, "stats")
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), data)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	numGoroutines := 100
	numOperations := 100

	// Параллельная запись
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("key%d", (id+j)%26)
				c.Set(ctx, key, []byte{byte(id % 256)})
			}
		}(i)
	}

	// Параллельное чтение
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("key%d", (id+j)%26)
				c.Get(ctx, key)
			}
		}(i)
	}

	wg.Wait()

	c.Set(ctx, "test", []byte("value"))
	data, ok := c.Get(ctx, "test")
	assert.True(t, ok)
	assert.Equal(t, []byte("value"), data)
}

func TestMemory_CloseStopsWorker(t *testing.T) {
	c := NewMemory(time.Minute)
	c.StartCleanupWorker(10 * time.Millisecond)

	require.NoError(t, c.Close())
	// Повторное закрытие безопасно
	require.NoError(t, c.Close())
}

func BenchmarkMemory_Set(b *testing.B) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()
	payload := []byte(`{"cases":73,"risk_level":"Умеренный"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(ctx, "stats", payload)
	}
}

func BenchmarkMemory_Get(b *testing.B) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()
	c.Set(ctx, "stats", []byte(`{"cases":73}`))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(ctx, "stats")
	}
}

func BenchmarkMemory_GetConcurrent(b *testing.B) {
	c := NewMemory(5 * time.Minute)
	ctx := context.Background()
	for i := 0; i < 26; i++ {
		c.Set(ctx, fmt.Sprintf("key%d", i), []byte("payload"))
	}

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Get(ctx, fmt.Sprintf("key%d", i%26))
			i++
		}
	})
}
