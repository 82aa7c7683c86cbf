// Command bot runs the guild activity hub: a Discord bot that tracks
// voice sessions, accrues XP, enforces per-room moderation states and
// serves stats through slash commands.
//
// Composition happens here and only here. Services are wired
// bottom-up: stores, then the domain services, then the gateway layer
// and the background scheduler. With DATABASE_URL unset the hub runs
// on in-memory stores, which is enough for local development against a
// test guild.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwallxyz/guild-activity-hub/config"
	"github.com/bwallxyz/guild-activity-hub/internal/application/leveling"
	"github.com/bwallxyz/guild-activity-hub/internal/application/modstate"
	"github.com/bwallxyz/guild-activity-hub/internal/application/query"
	"github.com/bwallxyz/guild-activity-hub/internal/application/tracker"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/level"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/moderation"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/session"
	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
	"github.com/bwallxyz/guild-activity-hub/internal/infrastructure/messaging"
	"github.com/bwallxyz/guild-activity-hub/internal/infrastructure/persistence/memory"
	"github.com/bwallxyz/guild-activity-hub/internal/infrastructure/persistence/postgres"
	redisstore "github.com/bwallxyz/guild-activity-hub/internal/infrastructure/persistence/redis"
	"github.com/bwallxyz/guild-activity-hub/internal/infrastructure/scheduler"
	"github.com/bwallxyz/guild-activity-hub/internal/infrastructure/scheduler/jobs"
	"github.com/bwallxyz/guild-activity-hub/internal/interface/discord"
	"github.com/bwallxyz/guild-activity-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ownershipProxy breaks the construction cycle between the tracker and
// the bot: the tracker needs room-ownership lookups, which the bot
// serves, but the bot needs the tracker in its dependencies. The proxy
// is handed to the tracker empty and pointed at the bot once it exists.
type ownershipProxy struct {
	bot *discord.Bot
}

func (p *ownershipProxy) IsRoomOwner(ctx context.Context, channel shared.ChannelID, user shared.UserID) (bool, error) {
	if p.bot == nil {
		return false, nil
	}
	return p.bot.IsRoomOwner(ctx, channel, user)
}

func run(ctx context.Context) error {
	// ────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})
	slogger := newSlogger(cfg.Observability.LogLevel)

	log.Info("starting guild activity hub",
		logger.String("version", cfg.App.Version),
		logger.String("environment", string(cfg.App.Environment)),
	)

	// ────────────────────────────────────────────────────────────────
	// 2. Persistence
	// ────────────────────────────────────────────────────────────────
	var (
		activityRepo   session.Repository
		levelRepo      level.Repository
		settingsRepo   level.SettingsRepository
		moderationRepo moderation.Repository
	)

	var pg *postgres.Connection
	if cfg.Database.URL != "" {
		pg, err = postgres.NewConnection(ctx, cfg.Database.URL, postgres.Config{
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()

		health, err := pg.Health(ctx)
		if err != nil {
			return fmt.Errorf("check postgres health: %w", err)
		}
		if !health.Healthy {
			return fmt.Errorf("postgres unhealthy: %s", health.Error)
		}
		if err := postgres.NewMigrator(pg).Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		activityRepo = postgres.NewActivityRepository(pg)
		levelRepo = postgres.NewLevelRepository(pg)
		settingsRepo = postgres.NewSettingsRepository(pg)
		moderationRepo = postgres.NewModerationRepository(pg)
		log.Info("postgres connected, migrations applied",
			logger.Duration("ping_latency", health.PingLatency),
			logger.Int("pool_max_conns", int(health.MaxConns)),
		)
	} else {
		activityRepo = memory.NewActivityStore()
		levelRepo = memory.NewLevelStore()
		settingsRepo = memory.NewSettingsStore()
		moderationRepo = memory.NewModerationStore()
		log.Warn("DATABASE_URL not set, running on in-memory stores")
	}

	// ────────────────────────────────────────────────────────────────
	// 3. Redis (optional): presence mirror, ranking mirror, event relay
	// ────────────────────────────────────────────────────────────────
	var (
		cache    *redisstore.Cache
		presence *redisstore.PresenceTracker
		rankings *redisstore.LeaderboardCache
	)
	if !cfg.Redis.Disabled {
		if cfg.Redis.URL != "" {
			cache, err = redisstore.NewCacheFromURL(cfg.Redis.URL)
		} else {
			cache, err = redisstore.NewCache(redisstore.Config{
				Host:         cfg.Redis.Host,
				Port:         cfg.Redis.Port,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				PoolSize:     cfg.Redis.PoolSize,
				MinIdleConns: cfg.Redis.MinIdleConns,
				DialTimeout:  cfg.Redis.DialTimeout,
				ReadTimeout:  cfg.Redis.ReadTimeout,
				WriteTimeout: cfg.Redis.WriteTimeout,
			})
		}
		if err != nil {
			if cfg.IsProduction() {
				return fmt.Errorf("connect redis: %w", err)
			}
			log.Warn("redis unavailable, continuing without mirrors", logger.Err(err))
			cache = nil
		}
	}
	if cache != nil {
		defer cache.Close()
		presence = redisstore.NewPresenceTracker(cache)
		rankings = redisstore.NewLeaderboardCache(cache)
		log.Info("redis connected")
	}

	// ────────────────────────────────────────────────────────────────
	// 4. Event bus
	// ────────────────────────────────────────────────────────────────
	var bus shared.EventBus
	if cache != nil {
		redisBus := messaging.NewRedisEventBus(cache.Client(), messaging.DefaultEventsChannel, slogger)
		if err := redisBus.Start(ctx); err != nil {
			return fmt.Errorf("start event relay: %w", err)
		}
		bus = redisBus
	} else {
		bus = messaging.NewInMemoryEventBus(messaging.WithBusLogger(slogger))
	}
	defer bus.Close()

	// ────────────────────────────────────────────────────────────────
	// 5. Core services
	// ────────────────────────────────────────────────────────────────
	engineOpts := []leveling.Option{leveling.WithEventBus(bus)}
	if rankings != nil {
		engineOpts = append(engineOpts, leveling.WithLeaderboardScorer(rankings))
	}
	engine := leveling.New(levelRepo, settingsRepo, activityRepo, log, engineOpts...)

	ownership := &ownershipProxy{}
	trackerOpts := []tracker.Option{}
	if presence != nil {
		trackerOpts = append(trackerOpts, tracker.WithPresenceRecorder(presence))
	}
	voiceTracker := tracker.New(activityRepo, ownership, log, trackerOpts...)

	modService := modstate.New(moderationRepo, log)
	statsService := query.New(activityRepo, levelRepo, settingsRepo, log)

	// ────────────────────────────────────────────────────────────────
	// 6. Discord gateway
	// ────────────────────────────────────────────────────────────────
	bot, err := discord.New(discord.Config{
		Token:          cfg.Discord.Token,
		CommandGuildID: cfg.Discord.CommandGuildID,
		Logger:         log,
	}, discord.Dependencies{
		Tracker:  voiceTracker,
		Engine:   engine,
		ModState: modService,
		Stats:    statsService,
		Bus:      bus,
	})
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	ownership.bot = bot

	notifier := discord.NewNotifier(bot.Session(), engine, log)
	bus.Subscribe(shared.EventLevelUp, notifier)

	// ────────────────────────────────────────────────────────────────
	// 7. Background jobs
	// ────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.NewScheduler(slogger)

		accrual := jobs.NewAccrueVoiceXPJob(engine, slogger)
		if err := sched.Register(accrual, scheduler.NewIntervalSchedule(cfg.Scheduler.VoiceAccrualInterval)); err != nil {
			return fmt.Errorf("register accrual job: %w", err)
		}

		if rankings != nil {
			refresh := jobs.NewRefreshLeaderboardsJob(bot, levelRepo, rankings, slogger)
			if err := sched.Register(refresh, scheduler.NewIntervalSchedule(cfg.Scheduler.RefreshLeaderboardInterval)); err != nil {
				return fmt.Errorf("register leaderboard job: %w", err)
			}
		}

		if cfg.Scheduler.DailyDigestEnabled {
			digest := jobs.NewDailyDigestJob(bot, statsService, notifier, slogger)
			if err := sched.Register(digest, scheduler.NewDailySchedule(cfg.Scheduler.DailyDigestHour, cfg.Scheduler.DailyDigestMinute)); err != nil {
				return fmt.Errorf("register digest job: %w", err)
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		log.Info("scheduler started", logger.Int("jobs", len(sched.ListJobs())))
	}

	// ────────────────────────────────────────────────────────────────
	// 8. Run until signalled
	// ────────────────────────────────────────────────────────────────
	if err := bot.Start(); err != nil {
		return fmt.Errorf("start bot: %w", err)
	}
	log.Info("bot running, press ctrl+c to exit")

	<-ctx.Done()

	// ────────────────────────────────────────────────────────────────
	// 9. Graceful shutdown
	// ────────────────────────────────────────────────────────────────
	log.Info("shutting down")

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	}
	if err := bot.Stop(); err != nil {
		log.Warn("gateway close failed", logger.Err(err))
	}

	log.Info("shutdown complete")
	return nil
}

// newSlogger builds the slog logger used by infrastructure packages.
func newSlogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
