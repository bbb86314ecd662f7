package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Bucket names. Avatars are world-readable, everything else requires a signed read.
const (
	BucketAvatars   = "avatars"
	BucketDocuments = "coach-documents"
	BucketContracts = "contracts"
)

var ErrNotFound = errors.New("storage: object not found")

// ObjectStore is the object storage boundary.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, bucket string, keys ...string) error
}

// IsPublic reports whether objects in bucket are readable without credentials.
func IsPublic(bucket string) bool {
	return bucket == BucketAvatars
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds "{owner}/{kind}/{version}/{filename}" with the filename reduced to a safe charset.
// version must be unique per upload; callers pass the id of the row that will reference the object.
func ObjectKey(owner, kind, version, filename string) (string, error) {
	owner = strings.TrimSpace(owner)
	kind = strings.TrimSpace(kind)
	version = strings.TrimSpace(version)
	if owner == "" || kind == "" || version == "" {
		return "", fmt.Errorf("storage: owner, kind and version are required")
	}
	if strings.ContainsAny(version, "/\\") || version == "." || version == ".." {
		return "", fmt.Errorf("storage: invalid version %q", version)
	}
	name := unsafeChars.ReplaceAllString(path.Base(strings.ReplaceAll(filename, "\\", "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	return owner + "/" + kind + "/" + version + "/" + name, nil
}
