package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/potrack/config"
	"example.com/potrack/internal/api"
	"example.com/potrack/internal/cache"
	"example.com/potrack/internal/database"
	"example.com/potrack/internal/messaging"
	"example.com/potrack/internal/metrics"
	"example.com/potrack/internal/search"
	"example.com/potrack/internal/services"
	"example.com/potrack/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server that handles purchase-order reads and writes and broadcasts realtime events`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	// Initialize the realtime event bus
	bus, err := messaging.NewRedisBus(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize event bus, clients will not receive realtime updates")
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

	// Initialize and start the server
	server := api.NewServer(cfg, poService, tracer, metricsCollector)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
