package app

import (
	"context"
	"fmt"

	"github.com/yungbote/coursesync-backend/internal/platform/gcp"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

var newResourceBucket = gcp.NewResourceBucket

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidConfig StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveResourceBucket returns nil without error when object storage is
// disabled; resource sizes are then only taken from what clients declare.
func resolveResourceBucket(ctx context.Context, log *logger.Logger, cfg gcp.StorageConfig) (gcp.ResourceBucket, error) {
	if !cfg.Enabled() {
		log.Info("Object storage disabled; resource sizes will not be looked up")
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		bootErr := &StorageProviderBootstrapError{
			Code:         StorageProviderBootstrapErrorInvalidConfig,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
		log.Error("Object storage provider selection failed", "mode", cfg.Mode, "error_code", bootErr.Code, "error", err)
		return nil, bootErr
	}

	log.Info("Selecting object storage provider", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	bucket, err := newResourceBucket(ctx, log, cfg)
	if err != nil {
		bootErr := &StorageProviderBootstrapError{
			Code:         StorageProviderBootstrapErrorConnectFailed,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
		log.Error("Object storage provider bootstrap failed", "mode", cfg.Mode, "error_code", bootErr.Code, "error", err)
		return nil, bootErr
	}
	return bucket, nil
}
