package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"sjsage522/listingwatcher/config"
	"sjsage522/listingwatcher/helpers"
	"sjsage522/listingwatcher/internal/extractor"
	"sjsage522/listingwatcher/internal/site"
	"sjsage522/listingwatcher/logger"
	"sjsage522/listingwatcher/services/cache"
	"sjsage522/listingwatcher/services/monitor"
	"sjsage522/listingwatcher/services/notifier"
	"sjsage522/listingwatcher/services/opener"
	"sjsage522/listingwatcher/services/publisher"
	"sjsage522/listingwatcher/services/store"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(stderr, "Incorrect input arguments: %v\n", err)
		if cfg != nil {
			fmt.Fprint(stderr, config.HelpText(cfg))
		}
		return 2
	}
	fmt.Fprint(stdout, config.HelpText(cfg))
	logger.ApplyEnvironment(cfg.Environment)

	profile, err := site.Lookup(cfg.Site)
	if err != nil {
		log.Error().Err(err).Msg("Invalid site")
		return 2
	}

	// Set up context cancelled by SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := initializeServices(ctx, cfg)
	defer services.Cleanup()

	m, err := newMonitor(cfg, profile, services, opener.NewBrowser(), opener.NewBell())
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize monitor")
		return 1
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("site", cfg.Site).
		Str("query", cfg.Query).
		Dur("delay", cfg.Delay()).
		Msg("Starting listing watcher")

	if err := serve(ctx, m, services); err != nil {
		logger.LogError("main", err, "Monitor exited with error")
		return 1
	}

	log.Info().
		Int("iterations", m.Iteration()).
		Msg("Shutting down gracefully...")
	return 0
}

// runner is the long-running part of the process
type runner interface {
	Run(ctx context.Context) error
}

// serve runs the monitor next to a member that releases the services as
// soon as the group context ends, whether by signal or by a monitor exit.
// Cancellation is a clean shutdown.
func serve(ctx context.Context, m runner, services *Services) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return m.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Releasing services")
		services.Cleanup()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Services holds the optional external services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher

	cleanup sync.Once
}

// Cleanup cleans up all services; later calls do nothing
func (s *Services) Cleanup() {
	s.cleanup.Do(func() {
		if s.Publisher != nil {
			if err := s.Publisher.Close(); err != nil {
				logger.ForPublisher().Warn().Err(err).Msg("Failed to close publisher")
			}
		}
	})
}

// initializeServices connects the optional services. An unreachable service
// is disabled with a warning; the monitor works without either.
func initializeServices(ctx context.Context, cfg *config.Config) *Services {
	services := &Services{}

	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			logger.ForCache().Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unavailable, page cache disabled")
		} else {
			services.Cache = mc
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}

	if cfg.RedisAddr != "" {
		rp := publisher.NewRedisPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		if err := rp.Ping(ctx); err != nil {
			logger.ForPublisher().Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, event stream disabled")
			rp.Close()
		} else {
			services.Publisher = rp
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	return services
}

// newMonitor wires the poll loop for one site profile
func newMonitor(cfg *config.Config, profile site.Profile, services *Services, op notifier.URLOpener, beeper notifier.Beeper) (*monitor.Monitor, error) {
	ext, err := extractor.New(profile, extractor.PairingMode(cfg.Pairing))
	if err != nil {
		return nil, err
	}

	seen, err := store.Load(cfg.ItemsFile)
	if err != nil {
		return nil, err
	}
	logger.ForStore().Info().
		Str("path", seen.Path()).
		Msgf("Initial items loaded from file: %d", seen.Len())

	n := notifier.New(notifier.Options{
		Site:      profile.Name,
		Query:     cfg.Query,
		Threshold: decimal.NewFromInt(int64(cfg.MaxPrice)),
		Unpriced:  notifier.UnpricedPolicy(cfg.UnpricedPolicy),
		Opener:    op,
		Beeper:    beeper,
		Publisher: services.Publisher,
	})

	return monitor.New(monitor.Settings{
		Site:      profile.Name,
		SearchURL: profile.SearchURLFor(cfg.Query, cfg.MinPrice, cfg.MaxPrice),
		MaxItems:  cfg.MaxItems,
		CapPolicy: monitor.CapPolicy(cfg.CapPolicy),
		Delay:     cfg.Delay(),
	}, monitor.Dependencies{
		Fetcher:   helpers.NewFetcher(profile.Name, cfg.FetchTimeout()),
		Extractor: ext,
		Store:     seen,
		Notifier:  n,
		Cache:     services.Cache,
	}), nil
}
