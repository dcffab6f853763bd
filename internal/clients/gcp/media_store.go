package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// MediaStore resolves content_media locations into something the model can
// consume. Plain https URLs pass through untouched; gs:// locations are
// downloaded and inlined as data URLs.
type MediaStore interface {
	ImageURL(ctx context.Context, location string) (string, error)
	Close() error
}

type mediaStore struct {
	log           *logger.Logger
	storageClient *storage.Client
	maxBytes      int64
}

func NewMediaStore(log *logger.Logger) (MediaStore, error) {
	serviceLog := log.With("service", "MediaStore")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &mediaStore{
		log:           serviceLog,
		storageClient: stClient,
		maxBytes:      20 << 20, // model API inline image limit
	}, nil
}

func (ms *mediaStore) ImageURL(ctx context.Context, location string) (string, error) {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return "", fmt.Errorf("empty media location")
	}
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		return loc, nil
	}
	if !strings.HasPrefix(loc, "gs://") {
		return "", fmt.Errorf("unsupported media location scheme: %s", loc)
	}

	bucket, key, err := splitGSURI(loc)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := ms.storageClient.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open GCS reader for %s: %w", loc, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(io.LimitReader(r, ms.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", loc, err)
	}
	if int64(len(raw)) > ms.maxBytes {
		return "", fmt.Errorf("media %s exceeds %d byte inline limit", loc, ms.maxBytes)
	}

	ct := r.Attrs.ContentType
	if ct == "" {
		ct = http.DetectContentType(raw)
	}
	return fmt.Sprintf("data:%s;base64,%s", ct, base64.StdEncoding.EncodeToString(raw)), nil
}

func splitGSURI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, "gs://")
	i := strings.Index(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("malformed gs:// uri: %s", uri)
	}
	return rest[:i], rest[i+1:], nil
}

func (ms *mediaStore) Close() error {
	if ms == nil || ms.storageClient == nil {
		return nil
	}
	return ms.storageClient.Close()
}
