package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/coursesync-backend/internal/platform/gcp"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

func TestResolveResourceBucketDisabled(t *testing.T) {
	bucket, err := resolveResourceBucket(context.Background(), logger.Nop(), gcp.StorageConfig{Mode: gcp.StorageModeDisabled})
	if err != nil || bucket != nil {
		t.Fatalf("expected nil bucket and nil error, got %v, %v", bucket, err)
	}
}

func TestResolveResourceBucketInvalidConfig(t *testing.T) {
	_, err := resolveResourceBucket(context.Background(), logger.Nop(), gcp.StorageConfig{
		Mode:   gcp.StorageModeGCSEmulator,
		Bucket: "course-resources",
	})
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != StorageProviderBootstrapErrorInvalidConfig {
		t.Fatalf("unexpected code: %s", got.Code)
	}
}

func TestResolveResourceBucketConnectFailed(t *testing.T) {
	orig := newResourceBucket
	t.Cleanup(func() { newResourceBucket = orig })
	cause := errors.New("dial tcp: connection refused")
	newResourceBucket = func(context.Context, *logger.Logger, gcp.StorageConfig) (gcp.ResourceBucket, error) {
		return nil, cause
	}

	_, err := resolveResourceBucket(context.Background(), logger.Nop(), gcp.StorageConfig{
		Mode:         gcp.StorageModeGCSEmulator,
		Bucket:       "course-resources",
		EmulatorHost: "http://127.0.0.1:4443",
	})
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) || got.Code != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should be preserved")
	}
	if got.EmulatorHost != "http://127.0.0.1:4443" {
		t.Fatalf("unexpected emulator host %q", got.EmulatorHost)
	}
}
