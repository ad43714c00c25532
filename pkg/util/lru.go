package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置 LRU 缓存的行为。
type CacheConfig struct {
	// Capacity 是缓存的最大条目数。为 0 时不限制数量。
	Capacity int
	// MaxWeight 是所有条目权重之和的上限。为 0 时不限制权重。
	MaxWeight int64
	// TTL 是条目的存活时间。为 0 时条目永不过期。
	TTL time.Duration
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	weight     int64
	expiration time.Time
}

// LRUCache 是一个泛型、线程安全的 LRU 缓存，支持按条目数、权重和 TTL 淘汰。
type LRUCache[K comparable, V any] struct {
	config        CacheConfig
	ll            *list.List
	items         map[K]*list.Element
	currentWeight int64
	onEvict       func(K, V)
	lock          sync.Mutex
}

// NewLRU 使用指定的配置创建 LRU 缓存。onEvict 在条目因超限或过期被淘汰时调用，可以为 nil。
func NewLRU[K comparable, V any](config CacheConfig, onEvict func(K, V)) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 && config.MaxWeight <= 0 {
		return nil, fmt.Errorf("必须设置 Capacity 或 MaxWeight 中的至少一个")
	}
	return &LRUCache[K, V]{
		config:  config,
		ll:      list.New(),
		items:   make(map[K]*list.Element),
		onEvict: onEvict,
	}, nil
}

// Get 根据键获取值，命中时标记为最近使用。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := element.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(element, true)
		return zero, false
	}
	c.ll.MoveToFront(element)
	return e.value, true
}

// Put 添加或更新一个键值对。按条目数淘汰时 weight 传 1 即可。
func (c *LRUCache[K, V]) Put(key K, value V, weight int64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if element, ok := c.items[key]; ok {
		e := element.Value.(*entry[K, V])
		c.currentWeight += weight - e.weight
		e.weight = weight
		e.value = value
		if c.config.TTL > 0 {
			e.expiration = time.Now().Add(c.config.TTL)
		}
		c.ll.MoveToFront(element)
	} else {
		e := &entry[K, V]{key: key, value: value, weight: weight}
		if c.config.TTL > 0 {
			e.expiration = time.Now().Add(c.config.TTL)
		}
		c.items[key] = c.ll.PushFront(e)
		c.currentWeight += weight
	}

	// 一个大的新条目可能需要淘汰多个旧条目
	for c.overLimit() {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeElement(back, true)
	}
}

// Remove 删除一个键，返回该键此前是否存在。不触发 onEvict。
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	element, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(element, false)
	return true
}

// Len 返回当前条目数。
func (c *LRUCache[K, V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ll.Len()
}

func (c *LRUCache[K, V]) expired(e *entry[K, V]) bool {
	return c.config.TTL > 0 && time.Now().After(e.expiration)
}

// 以下方法假设已持有锁。

func (c *LRUCache[K, V]) overLimit() bool {
	if c.config.Capacity > 0 && c.ll.Len() > c.config.Capacity {
		return true
	}
	return c.config.MaxWeight > 0 && c.currentWeight > c.config.MaxWeight
}

func (c *LRUCache[K, V]) removeElement(element *list.Element, evicted bool) {
	c.ll.Remove(element)
	e := element.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.currentWeight -= e.weight
	if evicted && c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}
