package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tg_group_admin_bot/internal/config"
	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/feature/access"
	"tg_group_admin_bot/internal/feature/group"
	"tg_group_admin_bot/internal/feature/inbox"
	"tg_group_admin_bot/internal/feature/operator"
	"tg_group_admin_bot/internal/feature/topic"
	"tg_group_admin_bot/internal/feature/user"
	"tg_group_admin_bot/internal/health"
	"tg_group_admin_bot/internal/logging"
	"tg_group_admin_bot/internal/store"
	"tg_group_admin_bot/internal/telegram"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	operatorSyncTimeout    = 5 * time.Second
	routerInitTimeout      = 30 * time.Second
	healthShutdownTimeout  = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":       "startup",
		"admins":      len(cfg.AdminIDs),
		"groups_file": cfg.GroupsFile,
		"mongo":       cfg.MongoEnabled(),
	}).Info("configuration loaded")

	registry, err := group.Load(cfg.GroupsFile, logger)
	if err != nil {
		logger.WithError(err).Error("group registry load error")
		fmt.Fprintf(os.Stderr, "group registry load error: %v\n", err)
		os.Exit(1)
	}

	opts := telegram.Options{BotName: cfg.BotName}

	var mongoManager *store.Manager
	if cfg.MongoEnabled() {
		mongoManager = connectMongo(cfg, logger)

		opts.Users = user.NewRegistrar(mongoManager.Users(), logger)
		opts.Directory = domain.NewUserRepository(mongoManager.Users())
		opts.Stats = store.NewStatsProvider(mongoManager.Users())
		opts.Inbox = inbox.NewStore(mongoManager.Inbox(), mongoManager.Counters(), logger)
		opts.Topics = topic.NewDirectory(mongoManager.Topics(), logger)
	} else {
		logger.WithField("event", "mongo_disabled").Info("MONGO_URI not set, user tracking, inbox and topic names disabled")
	}

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	gate := access.NewGate(cfg.AdminIDs, telegram.NewChatAdminLookup(tgClient.Platform()), logger)
	router := telegram.NewRouter(tgClient.Platform(), registry, gate, logger, opts)

	initCtx, cancelInit := context.WithTimeout(context.Background(), routerInitTimeout)
	if err := router.Init(initCtx); err != nil {
		logger.WithField("event", "router_init_failed").WithError(err).Warn("could not resolve bot identity, commands addressed by mention may be misrouted")
	}
	cancelInit()

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(signalCtx)

	g.Go(func() error {
		tgClient.Start(ctx, router)
		// polling stopped, with or without a signal; stop the health server too
		stop()
		return nil
	})

	if cfg.HTTPPort > 0 {
		var checker health.MongoChecker
		if mongoManager != nil {
			checker = mongoManager
		}
		healthServer := health.NewServer(cfg.HTTPPort, registry, checker, logger)

		g.Go(healthServer.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), healthShutdownTimeout)
			defer cancel()
			return healthServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.WithField("event", "run_error").WithError(err).Error("bot stopped with error")
	}

	if mongoManager != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		if err := mongoManager.Close(shutdownCtx); err != nil {
			logger.WithError(err).Error("mongo disconnect error")
		} else {
			logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
		}
		cancelShutdown()
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// connectMongo opens the optional user store and syncs operator roles. Any
// failure here is fatal because MONGO_URI was explicitly configured.
func connectMongo(cfg config.Config, logger *logrus.Entry) *store.Manager {
	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	manager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := manager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	syncCtx, cancelSync := context.WithTimeout(context.Background(), operatorSyncTimeout)
	if err := operator.NewRegistrar(manager.Users(), logger).EnsureOperators(syncCtx, cfg.AdminIDs); err != nil {
		cancelSync()
		logger.WithError(err).Error("operator sync error")
		fmt.Fprintf(os.Stderr, "operator sync error: %v\n", err)
		os.Exit(1)
	}
	cancelSync()

	return manager
}
