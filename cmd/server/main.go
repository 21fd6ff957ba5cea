package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/config"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/database"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/handler"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/middleware"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/queue"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/repository"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/repository/memstore"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/router"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/service"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/utils"
)

// stores is the storage wiring chosen at startup.
type stores struct {
	users    service.UserStore
	appts    service.AppointmentStore
	sessions service.SessionStore
	ready    map[string]handler.Pinger
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.WithComponent("main").Warn("redis unavailable; using in-process limiter and no cache")
	} else {
		defer rdb.Close()
	}

	st, db, err := openStores(ctx, cfg, rdb, log)
	if err != nil {
		log.WithComponent("main").WithError(err).Fatal("storage setup failed")
	}
	if db != nil {
		defer db.Close()
	}

	var (
		events service.EventPublisher
		outbox *queue.Outbox
	)
	if cfg.AMQPURL != "" {
		publisher := queue.NewPublisher(cfg.AMQPURL, log)
		defer publisher.Close()
		outbox = queue.NewOutbox(publisher, cfg.EventBufferSize, cfg.StorageTimeout, log)
		events = outbox
	}

	dir := service.NewDirectory(st.users, cfg.BcryptCost, log)
	sessions := service.NewSessionService(st.sessions, dir, utils.NewTokenCodec(cfg.SessionSecret), service.SessionOptions{
		TTL:            cfg.SessionTTL,
		StorageTimeout: cfg.StorageTimeout,
	}, log)
	sched := service.NewScheduler(st.appts, dir, events, service.SchedulerOptions{
		CreateRetries:      cfg.CreateRetries,
		CreateRetryBackoff: cfg.CreateRetryBackoff,
		StorageTimeout:     cfg.StorageTimeout,
	}, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, st.ready)
	router.RegisterAuth(e, handler.NewAuthHandler(dir, sessions), sessions,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	cacheCfg := config.LoadCacheConfig()
	router.RegisterDirectory(e, handler.NewDirectoryHandler(dir), sessions,
		middleware.NewRedisCache(cacheCfg, rdb, log), middleware.NewCachePurge(cacheCfg, rdb, log))
	router.RegisterAppointments(e, handler.NewAppointmentHandler(service.NewAuthorizedScheduler(sessions, sched)), sessions)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithComponent("main").WithField("env", cfg.Env).WithField("storage", cfg.Storage).Infof("listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sessions.RunSweeper(gctx, cfg.SessionSweepInterval)
	})
	if outbox != nil {
		g.Go(func() error { return outbox.Run(gctx) })
	}
	if cfg.AMQPURL != "" {
		consumer := queue.NewAuditConsumer(cfg.AMQPURL, cfg.AuditLogPath, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.WithComponent("main").WithError(err).Fatal("server stopped")
	}
	log.WithComponent("main").Info("shutdown complete")
}

// openStores selects the storage back ends.  Users and appointments live in
// MySQL or memory; sessions prefer Redis when it is reachable.
func openStores(ctx context.Context, cfg config.Config, rdb *redis.Client, log *logger.Logger) (stores, *sql.DB, error) {
	st := stores{ready: map[string]handler.Pinger{}}
	var db *sql.DB

	switch cfg.Storage {
	case config.StorageMemory:
		st.users = memstore.NewUsers()
		st.appts = memstore.NewAppointments()
		st.sessions = memstore.NewSessions()
	default:
		var err error
		db, err = database.Open(database.Options{
			User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		})
		if err != nil {
			return stores{}, nil, err
		}
		if cfg.MigrationsPath != "" {
			n, err := database.Migrate(ctx, db, cfg.MigrationsPath)
			if err != nil {
				db.Close()
				return stores{}, nil, err
			}
			log.WithComponent("main").WithField("statements", n).Info("schema applied")
		}
		st.users = repository.NewUserRepo(db)
		st.appts = repository.NewAppointmentRepo(db)
		st.sessions = repository.NewSessionRepo(db)
		st.ready["mysql"] = db.PingContext
	}

	if rdb != nil {
		st.sessions = repository.NewRedisSessionStore(rdb, "sess")
		st.ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return st, db, nil
}
