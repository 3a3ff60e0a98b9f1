package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/coursesync-backend/internal/modules/offline/sizing"
	"github.com/yungbote/coursesync-backend/internal/platform/envutil"
	"github.com/yungbote/coursesync-backend/internal/platform/gcp"
	"github.com/yungbote/coursesync-backend/internal/platform/keylock"
	"github.com/yungbote/coursesync-backend/internal/platform/redisx"
	"github.com/yungbote/coursesync-backend/internal/platform/sendgrid"
	"github.com/yungbote/coursesync-backend/internal/platform/twilio"
)

type Config struct {
	Port           string
	ServiceName    string
	Environment    string
	Version        string
	AllowedOrigins []string
	MetricsAddr    string

	LockMode    keylock.Mode
	LockTTL     time.Duration
	Sizing      sizing.Config
	Redis       redisx.Config
	SSEChannel  string
	Twilio      twilio.Config
	SendGrid    sendgrid.Config
	Storage     gcp.StorageConfig
	AutoMigrate bool
}

func LoadConfig() (Config, error) {
	lockMode, err := keylock.ParseMode(envutil.String("LOCK_MODE", "local"))
	if err != nil {
		return Config{}, err
	}
	sizingCfg, err := sizing.LoadConfig(envutil.String("SIZING_CONFIG_FILE", ""))
	if err != nil {
		return Config{}, err
	}
	storageCfg, err := gcp.StorageConfigFromEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:           envutil.String("PORT", "8080"),
		ServiceName:    envutil.String("OTEL_SERVICE_NAME", "coursesync-backend"),
		Environment:    envutil.String("APP_ENV", "development"),
		Version:        envutil.String("APP_VERSION", "dev"),
		AllowedOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		MetricsAddr:    envutil.String("METRICS_ADDR", ""),
		LockMode:       lockMode,
		LockTTL:        envutil.Seconds("LOCK_TTL_SECONDS", 10*time.Second),
		Sizing:         sizingCfg,
		Redis:          redisx.ConfigFromEnv(),
		SSEChannel:     envutil.String("REDIS_SSE_CHANNEL", "coursesync:sse"),
		Twilio:         twilio.ConfigFromEnv(),
		SendGrid:       sendgrid.ConfigFromEnv(),
		Storage:        storageCfg,
		AutoMigrate:    envutil.Bool("DB_AUTO_MIGRATE", true),
	}
	if cfg.LockMode == keylock.ModeRedis && !cfg.Redis.Enabled() {
		return Config{}, fmt.Errorf("LOCK_MODE=redis requires REDIS_ADDR")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
