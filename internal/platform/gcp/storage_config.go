package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/coursesync-backend/internal/platform/envutil"
)

type StorageMode string

const (
	StorageModeDisabled    StorageMode = "disabled"
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

type StorageConfig struct {
	Mode         StorageMode
	Bucket       string
	CDNDomain    string
	EmulatorHost string
}

func (cfg StorageConfig) Enabled() bool { return cfg.Mode != StorageModeDisabled && cfg.Mode != "" }

func (cfg StorageConfig) IsEmulatorMode() bool { return cfg.Mode == StorageModeGCSEmulator }

// StorageConfigFromEnv resolves the resource bucket settings. Without a bucket
// name storage lookups are disabled. STORAGE_EMULATOR_HOST alone implies the
// emulator mode.
func StorageConfigFromEnv() (StorageConfig, error) {
	cfg := StorageConfig{
		Bucket:       envutil.String("COURSE_RESOURCES_GCS_BUCKET", ""),
		CDNDomain:    strings.TrimRight(envutil.String("COURSE_RESOURCES_CDN_DOMAIN", ""), "/"),
		EmulatorHost: strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
	}
	raw := strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", ""))
	switch StorageMode(raw) {
	case "":
		switch {
		case cfg.Bucket == "":
			cfg.Mode = StorageModeDisabled
		case cfg.EmulatorHost != "":
			cfg.Mode = StorageModeGCSEmulator
		default:
			cfg.Mode = StorageModeGCS
		}
	case StorageModeDisabled, StorageModeGCS, StorageModeGCSEmulator:
		cfg.Mode = StorageMode(raw)
	default:
		return cfg, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q)",
			raw, StorageModeDisabled, StorageModeGCS, StorageModeGCSEmulator)
	}
	return cfg, cfg.Validate()
}

func (cfg StorageConfig) Validate() error {
	if !cfg.Enabled() {
		return nil
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires COURSE_RESOURCES_GCS_BUCKET", cfg.Mode)
	}
	if !cfg.IsEmulatorMode() {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", cfg.Mode)
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost)
	}
	return nil
}
