package storage

import (
	"context"
	"fmt"
	"sync"
)

var _ ObjectStore = (*Memory)(nil)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory is an in-process ObjectStore. FailBucket makes uploads to that bucket fail.
type Memory struct {
	mu         sync.RWMutex
	objects    map[string]Object
	FailBucket string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailBucket != "" && m.FailBucket == bucket {
		return "", fmt.Errorf("storage: bucket %s unavailable", bucket)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[bucket+"/"+key] = Object{Data: buf, ContentType: contentType}
	if IsPublic(bucket) {
		return "memory://public/" + bucket + "/" + key, nil
	}
	return "memory://" + bucket + "/" + key, nil
}

func (m *Memory) Delete(ctx context.Context, bucket string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, bucket+"/"+k)
	}
	return nil
}

// Get returns a stored object.
func (m *Memory) Get(bucket, key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[bucket+"/"+key]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
