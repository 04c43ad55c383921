package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/potrack/config"
	"example.com/potrack/internal/messaging"
	"example.com/potrack/internal/metrics"
	"example.com/potrack/internal/realtime"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow purchase-order activity from a terminal",
	Long:  `Start a client session that seeds the local entity store from the API and follows realtime updates, printing notifications as they arrive`,
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	client := realtime.NewAPIClient(cfg.Client.APIBaseURL, cfg.Client.UserID, cfg.Client.UserName)
	store := realtime.NewStore()
	notes := realtime.NewNotificationStore()
	stats := metrics.NewMetrics()

	// Seed the store before attaching the coordinator
	items, err := client.FetchItems(ctx)
	if err != nil {
		return err
	}
	store.ReplaceAll(items)
	log.Info().Int("items", store.Len()).Msg("Seeded entity store")

	// Attach the sync coordinator. A missing bus degrades to
	// refetch-only operation.
	bus, err := messaging.NewRedisBus(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Event bus unavailable, relying on periodic refetch only")
	}
	var eventBus messaging.EventBus
	if bus != nil {
		eventBus = bus
		defer bus.Close()
	}

	coordinator := realtime.NewCoordinator(eventBus, store, notes, cfg.Client.UserID, stats)
	coordinator.Start()
	defer coordinator.Stop()

	// Refetch periodically so a dropped subscription converges anyway
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Client.RefetchInterval),
		gocron.NewTask(func() {
			refreshed, err := client.FetchItems(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Periodic refetch failed")
				return
			}
			store.ReplaceAll(refreshed)
			log.Info().Int("items", store.Len()).Msg("Refreshed entity store")
		}),
	)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	// Print notifications as the coordinator adds them
	printed := make(map[string]bool)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Watch session closed")
			return nil
		case <-ticker.C:
			for _, note := range notes.List() {
				if printed[note.ID] {
					continue
				}
				printed[note.ID] = true
				fmt.Printf("[%s] %s: %s\n",
					note.Timestamp.Format("15:04:05"), note.Title, note.Message)
			}
		}
	}
}
