package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/coursesync-backend/internal/data/db"
	"github.com/yungbote/coursesync-backend/internal/data/repos"
	apphttp "github.com/yungbote/coursesync-backend/internal/http"
	httpH "github.com/yungbote/coursesync-backend/internal/http/handlers"
	"github.com/yungbote/coursesync-backend/internal/modules/offline/sizing"
	"github.com/yungbote/coursesync-backend/internal/observability"
	"github.com/yungbote/coursesync-backend/internal/platform/gcp"
	"github.com/yungbote/coursesync-backend/internal/platform/keylock"
	"github.com/yungbote/coursesync-backend/internal/platform/logger"
	"github.com/yungbote/coursesync-backend/internal/platform/redisx"
	"github.com/yungbote/coursesync-backend/internal/platform/sendgrid"
	"github.com/yungbote/coursesync-backend/internal/platform/twilio"
	"github.com/yungbote/coursesync-backend/internal/realtime"
	"github.com/yungbote/coursesync-backend/internal/realtime/bus"
	"github.com/yungbote/coursesync-backend/internal/services"
)

type Clients struct {
	Redis  *goredis.Client
	SSEBus bus.Bus
	SMS    twilio.Client
	Email  sendgrid.Client
	Bucket gcp.ResourceBucket
}

type Repos struct {
	User         repos.UserRepo
	Course       repos.CourseRepo
	Progress     repos.CourseProgressRepo
	Resource     repos.DownloadableResourceRepo
	Notification repos.NotificationRepo
}

type Services struct {
	Notifications  services.NotificationService
	CourseProgress services.CourseProgressService
	Resources      services.DownloadableResourceService
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics

	server       *apphttp.Server
	pg           *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.AutoMigrateAll(); err != nil {
			_ = pg.Close()
			log.Sync()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	theDB := pg.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, hub)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	server := apphttp.NewServer(apphttp.RouterConfig{
		Log:                   log,
		ServiceName:           cfg.ServiceName,
		AllowedOrigins:        cfg.AllowedOrigins,
		Metrics:               metrics,
		CourseProgressHandler: httpH.NewCourseProgressHandler(log, serviceset.CourseProgress),
		ResourceHandler:       httpH.NewResourceHandler(log, serviceset.Resources),
		NotificationHandler:   httpH.NewNotificationHandler(log, serviceset.Notifications),
		RealtimeHandler:       httpH.NewRealtimeHandler(log, hub),
		HealthHandler:         httpH.NewHealthHandler(theDB),
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       server.Engine,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		SSEHub:       hub,
		Metrics:      metrics,
		server:       server,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis
	if cfg.Redis.Enabled() {
		rdb, err := redisx.Connect(ctx, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = rdb
		b, err := bus.NewRedisBus(log, rdb, cfg.SSEChannel)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		c.SSEBus = b
	}

	// Twilio
	if cfg.Twilio.Configured() {
		sms, err := twilio.New(log, cfg.Twilio)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init twilio client: %w", err)
		}
		c.SMS = sms
	} else {
		log.Warn("Twilio not configured; SMS notifications stay in-app")
	}

	// SendGrid
	if cfg.SendGrid.Configured() {
		email, err := sendgrid.New(log, cfg.SendGrid)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init sendgrid client: %w", err)
		}
		c.Email = email
	}

	// Gcs
	bucket, err := resolveResourceBucket(ctx, log, cfg.Storage)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	c.Bucket = bucket

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

func wireRepos(theDB *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:         repos.NewUserRepo(theDB, log),
		Course:       repos.NewCourseRepo(theDB, log),
		Progress:     repos.NewCourseProgressRepo(theDB, log),
		Resource:     repos.NewDownloadableResourceRepo(theDB, log),
		Notification: repos.NewNotificationRepo(theDB, log),
	}
}

func wireServices(theDB *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	var emit services.SSEEmitter = &services.HubEmitter{Hub: hub}
	if c.SSEBus != nil {
		emit = &services.RedisEmitter{Bus: c.SSEBus, Log: log}
	}

	var locks keylock.Locker
	switch cfg.LockMode {
	case keylock.ModeNone:
		locks = keylock.Noop{}
	case keylock.ModeRedis:
		rl, err := keylock.NewRedis(log, c.Redis, keylock.RedisConfig{TTL: cfg.LockTTL})
		if err != nil {
			return Services{}, fmt.Errorf("init redis key lock: %w", err)
		}
		locks = rl
	default:
		locks = keylock.NewLocal()
	}
	log.Info("Progress key lock selected", "mode", cfg.LockMode)

	notifications := services.NewNotificationService(theDB, log, r.User, r.Notification, c.SMS, c.Email, emit)
	progress := services.NewCourseProgressService(
		theDB,
		log,
		r.Course,
		r.User,
		r.Progress,
		sizing.NewEstimator(cfg.Sizing),
		notifications,
		emit,
		locks,
	)
	resources := services.NewDownloadableResourceService(theDB, log, r.Course, r.Resource, c.Bucket, emit)

	return Services{
		Notifications:  notifications,
		CourseProgress: progress,
		Resources:      resources,
	}, nil
}

// Start launches background work: the redis forwarder feeding the local hub
// and the standalone metrics listener.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}
	if a.Cfg.MetricsAddr != "" {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}
	return nil
}

// Run blocks serving HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr)
	return a.server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
