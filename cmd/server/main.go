package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"github.com/iliyamo/gym-booking/internal/booking"
	"github.com/iliyamo/gym-booking/internal/config"
	"github.com/iliyamo/gym-booking/internal/database"
	"github.com/iliyamo/gym-booking/internal/handler"
	"github.com/iliyamo/gym-booking/internal/metrics"
	"github.com/iliyamo/gym-booking/internal/middleware"
	"github.com/iliyamo/gym-booking/internal/queue"
	"github.com/iliyamo/gym-booking/internal/repository"
	"github.com/iliyamo/gym-booking/internal/router"
	"github.com/iliyamo/gym-booking/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	var (
		envFile     string
		migrateOnly bool
		noConsumer  bool
	)
	flags := pflag.NewFlagSet("gym-booking", pflag.ContinueOnError)
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment (ignored if missing)")
	flags.BoolVar(&migrateOnly, "migrate-only", false, "apply database migrations and exit")
	flags.BoolVar(&noConsumer, "no-consumer", false, "do not start the in-process booking event consumer")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := database.Migrate(cfg.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if migrateOnly {
		log.Printf("migrations applied (%s)", cfg.DB.Dialect)
		return nil
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bookings := repository.NewBookingRepo(db, cfg.DB.Dialect)
	profiles := repository.NewProfileRepo(db, cfg.DB.Dialect)
	identities := repository.NewIdentityRepo(db, cfg.DB.Dialect)
	tokens := repository.NewTokenRepo(db, cfg.DB.Dialect)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Printf("redis unavailable: rate limiting and calendar cache disabled")
	} else {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	gen := middleware.NewCacheGeneration(cacheCfg, rdb)

	var events handler.Events = service.Discard{}
	if cfg.BrokerEnabled {
		events = service.NewPublisher(cfg.RabbitURL)
		if !noConsumer {
			consumer := queue.Consumer{URL: cfg.RabbitURL, LogDir: cfg.LogDir}
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("booking-consumer: stopped: %v", err)
				}
			}()
		}
	}

	m := metrics.New()
	hooks := handler.Hooks{Events: events, Cache: gen}
	policy := booking.DefaultPolicy(cfg.Facility)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(middleware.Instrument(m))

	router.RegisterRoutes(e, handler.Health(db), m.Handler())
	// Sign-in routes have no caller yet, so they are limited per IP and route.
	rl := config.LoadRateLimitConfig()
	authRL := rl
	authRL.KeyStrategy = "ip_route"
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, identities, profiles, tokens),
		middleware.NewTokenBucket(authRL, rdb))
	member := router.Member{
		JWTSecret: cfg.JWTSecret,
		Profiles:  profiles,
		RateLimit: middleware.NewTokenBucket(rl, rdb),
		Calendar:  middleware.CalendarCache(cacheCfg, rdb, gen),
	}
	router.RegisterBookings(e, member,
		handler.NewBookingHandler(bookings, policy, hooks, m),
		handler.NewProfileHandler(profiles))
	router.RegisterAdmin(e, member, handler.NewAdminHandler(bookings, profiles, hooks, m))

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, db=%s, tz=%s)", addr, cfg.Env, cfg.DB.Dialect, cfg.Facility)
	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Printf("shutting down")
	return e.Shutdown(shutdownCtx)
}
