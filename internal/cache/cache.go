// Package cache реализует LRU-кэш дорогих производных представлений.
// Инвалидация не нужна: каждая запись помечена id головы журнала на
// момент вычисления, и попадание засчитывается только при совпадении
// с текущей головой. Устаревание структурно невозможно.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/iudanet/tabsync/internal/models"
)

// Счетчик записей вторичен, бюджет в байтах — основной ограничитель.
const entryCountCap = 65536

// HeadReader — минимум, который кэшу нужен от хранилища.
type HeadReader interface {
	LogHead(ctx context.Context, tournamentID uuid.UUID) (*models.LogEntry, error)
}

type entry struct {
	data    []byte
	version uuid.UUID
}

// Cache — ограниченный по суммарному размеру LRU сериализованных
// значений. Внутренняя блокировка держится только вокруг операций с
// картой; вычисление значения идет без нее.
type Cache struct {
	lru       *simplelru.LRU[string, entry]
	maxBytes  int
	currBytes int
	mu        sync.Mutex
}

// New creates a cache with the given byte budget.
func New(maxBytes int) *Cache {
	c := &Cache{maxBytes: maxBytes}

	// onEvict вызывается при любом удалении, включая Remove и
	// RemoveOldest, поэтому учет размера живет только здесь.
	l, err := simplelru.NewLRU(entryCountCap, func(_ string, e entry) {
		c.currBytes -= len(e.data)
	})
	if err != nil {
		// NewLRU ошибается только при неположительном размере.
		panic(err)
	}
	c.lru = l

	return c
}

// Key собирает ключ кэша из id турнира и параметров представления.
func Key(tournamentID uuid.UUID, parts ...string) string {
	return tournamentID.String() + "|" + strings.Join(parts, "|")
}

// GetOrCompute возвращает закэшированное значение, если голова журнала
// турнира не менялась с момента его вычисления; иначе вызывает compute
// и кэширует результат под текущей головой. Значения крупнее всего
// бюджета вычисляются, но не кэшируются. Ошибки сериализации деградируют
// в промах, а не в отказ.
func GetOrCompute[T any](ctx context.Context, c *Cache, heads HeadReader, tournamentID uuid.UUID, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	head, err := heads.LogHead(ctx, tournamentID)
	if err != nil {
		return zero, err
	}
	version := uuid.Nil
	if head != nil {
		version = head.UUID
	}

	c.mu.Lock()
	cached, ok := c.lru.Get(key)
	c.mu.Unlock()

	if ok && cached.version == version {
		var value T
		if err := json.Unmarshal(cached.data, &value); err == nil {
			return value, nil
		}
		// Испорченная запись — пересчитываем.
	}

	value, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(value)
	if err != nil || len(data) > c.maxBytes {
		return value, nil
	}

	c.mu.Lock()
	c.lru.Remove(key)
	for c.currBytes+len(data) > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
	c.lru.Add(key, entry{data: data, version: version})
	c.currBytes += len(data)
	c.mu.Unlock()

	return value, nil
}

// Len возвращает текущее число записей (для тестов и метрик).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
