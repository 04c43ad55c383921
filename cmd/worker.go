package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/potrack/config"
	"example.com/potrack/internal/cache"
	"example.com/potrack/internal/database"
	"example.com/potrack/internal/messaging"
	"example.com/potrack/internal/metrics"
	"example.com/potrack/internal/search"
	"example.com/potrack/internal/services"
	"example.com/potrack/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that bridges ERP messages from Azure Service Bus into purchase orders and reconciles delivery state`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections
	conn, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without activity indexing")
	}

	// Initialize the realtime event bus so bridged writes reach clients
	bus, err := messaging.NewRedisBus(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize event bus, bridged writes will not reach clients")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize services
	var eventBus messaging.EventBus
	if bus != nil {
		eventBus = bus
		defer bus.Close()
	}
	poService := services.NewPOService(conn.DB, conn.ReadOnlyDB, redisCache, eventBus, elasticClient, tracer, metricsCollector)

	// Initialize the ERP queue bridge
	bridge, err := messaging.NewServiceBusBridge(cfg.Azure)
	if err != nil {
		return err
	}
	defer bridge.Close()

	// Start the queue processor
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting ERP queue processor")
		return bridge.ProcessMessages(ctx, poService.HandleErpMessage)
	})

	// Start the delivery reconciliation cron job as a fallback mechanism
	g.Go(func() error {
		log.Info().Msg("Starting delivery reconciliation cron job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(5*time.Minute),
			gocron.NewTask(func() {
				if err := poService.ReconcileDeliveries(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to reconcile deliveries")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
