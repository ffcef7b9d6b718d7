package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockCache is an in-memory Cache for tests. Any Func field overrides the
// default map-backed behaviour of its method; every call is recorded.
type MockCache struct {
	PingFunc   func(ctx context.Context) error
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetFunc    func(ctx context.Context, key string) (string, error)
	DelFunc    func(ctx context.Context, keys ...string) error
	ExistsFunc func(ctx context.Context, keys ...string) (bool, error)

	SetCalls   []SetCall
	GetCalls   []string
	DelCalls   [][]string
	CloseCalls int

	mu    sync.Mutex
	items map[string]string
}

// SetCall records one Set
type SetCall struct {
	Key        string
	Value      interface{}
	Expiration time.Duration
}

var _ Cache = (*MockCache)(nil)

// NewMockCache creates an empty mock cache
func NewMockCache() *MockCache {
	return &MockCache{items: make(map[string]string)}
}

func (m *MockCache) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, SetCall{Key: key, Value: value, Expiration: expiration})
	m.mu.Unlock()

	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case string:
		m.items[key] = v
	case []byte:
		m.items[key] = string(v)
	default:
		m.items[key] = fmt.Sprint(v)
	}
	return nil
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, key)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key], nil
}

func (m *MockCache) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	m.DelCalls = append(m.DelCalls, keys)
	m.mu.Unlock()

	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *MockCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, keys...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if _, ok := m.items[k]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockCache) Close() error {
	m.CloseCalls++
	return nil
}

func (m *MockCache) WaitForConnection(ctx context.Context) error {
	return m.Ping(ctx)
}

// Len is the number of stored keys
func (m *MockCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
