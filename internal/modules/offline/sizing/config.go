package sizing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/coursesync-backend/internal/platform/envutil"
)

// LoadConfig starts from DefaultConfig, applies the YAML file at path (if any)
// and then the SIZING_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path = strings.TrimSpace(path)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read sizing config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse sizing config %q: %w", path, err)
		}
	}

	cfg.MetadataBytes = envutil.Int64("SIZING_METADATA_BYTES", cfg.MetadataBytes)
	cfg.VideoBytesPerMinute = envutil.Int64("SIZING_VIDEO_BYTES_PER_MINUTE", cfg.VideoBytesPerMinute)
	cfg.DefaultVideoMinutes = envutil.Float("SIZING_DEFAULT_VIDEO_MINUTES", cfg.DefaultVideoMinutes)
	cfg.DefaultResourceBytes = envutil.Int64("SIZING_DEFAULT_RESOURCE_BYTES", cfg.DefaultResourceBytes)
	cfg.QuizBytes = envutil.Int64("SIZING_QUIZ_BYTES", cfg.QuizBytes)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid sizing config: %w", err)
	}
	return cfg, nil
}
