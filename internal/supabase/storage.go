package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"gymstudio.app/internal/storage"
)

var _ storage.ObjectStore = (*Storage)(nil)

// Storage implements storage.ObjectStore on Supabase Storage.
type Storage struct {
	c *Client
}

func NewStorage(c *Client) *Storage {
	return &Storage{c: c}
}

// Upload writes the object with upsert semantics so retries overwrite the same key.
func (s *Storage) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	path := "/storage/v1/object/" + bucket + "/" + escapeKey(key)
	_, err := s.c.makeRequest(ctx, http.MethodPost, path, rawBody{data: data, contentType: contentType}, map[string]string{
		"x-upsert": "true",
	})
	if err != nil {
		return "", err
	}
	if storage.IsPublic(bucket) {
		return s.c.baseURL + "/storage/v1/object/public/" + bucket + "/" + escapeKey(key), nil
	}
	return s.c.baseURL + "/storage/v1/object/authenticated/" + bucket + "/" + escapeKey(key), nil
}

func (s *Storage) Delete(ctx context.Context, bucket string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.c.makeRequest(ctx, http.MethodDelete, "/storage/v1/object/"+bucket, map[string]any{
		"prefixes": keys,
	}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return storage.ErrNotFound
	}
	return err
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
