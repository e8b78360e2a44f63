// Package setup assembles the application components shared by every
// entrypoint: configuration, logging, Redis connections, the platform
// client and the aggregate stores.
package setup

import (
	"log"

	"github.com/redlytics/redlytics/internal/reddit"
	"github.com/redlytics/redlytics/internal/redis"
	"github.com/redlytics/redlytics/internal/scheduler"
	"github.com/redlytics/redlytics/internal/setup/config"
	"github.com/redlytics/redlytics/internal/setup/logging"
	"github.com/redlytics/redlytics/internal/stats"
	"go.uber.org/zap"
)

// App contains the common components built once at startup.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	RedisManager *redis.Manager
	// Stats persists the aggregates the service owns.
	Stats *stats.Store
	// Cache holds short-lived lookups that can be flushed without loss.
	Cache *stats.Store
	// Runner schedules and executes the aggregation jobs.
	Runner *scheduler.Runner
	// Reddit is the platform client every external lookup goes through.
	Reddit *reddit.Client
}

// InitializeApp performs common setup tasks and returns an App.
func InitializeApp() (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(&cfg.Debug)

	redisManager := redis.NewManager(&cfg.Redis, logger)

	statsClient, err := redisManager.GetClient(redis.StatsDBIndex)
	if err != nil {
		return nil, err
	}

	cacheClient, err := redisManager.GetClient(redis.CacheDBIndex)
	if err != nil {
		return nil, err
	}

	scheduleClient, err := redisManager.GetClient(redis.ScheduleDBIndex)
	if err != nil {
		return nil, err
	}

	redditClient, err := reddit.NewClient(cfg, redisManager, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		RedisManager: redisManager,
		Stats:        stats.NewStore(statsClient, logger),
		Cache:        stats.NewStore(cacheClient, logger),
		Runner:       scheduler.NewRunner(scheduleClient, logger),
		Reddit:       redditClient,
	}, nil
}

// Cleanup releases the app's shared resources.
func (a *App) Cleanup() {
	a.RedisManager.Close()

	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
}
