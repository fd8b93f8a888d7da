package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"pushplan/internal/config"
	"pushplan/internal/engine"
	"pushplan/internal/entity"
	"pushplan/internal/handlers"
	"pushplan/internal/push"
	"pushplan/internal/schedule"
	"pushplan/internal/storage"
	"pushplan/internal/templates"
	"pushplan/internal/variants"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	store, err := storage.NewRedisStorage(cfg.RedisAddr, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}

	entities := entity.NewRedisProvider(store.Client())
	zones := entity.NewRedisTimezones(store.Client())

	pusher, err := buildPusher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pusher")
	}

	sender := push.NewSender(store, pusher, nil, cfg.ChunksPerSecond, log)

	coord := engine.NewCoordinator(store, log)
	coord.RegisterScheduler(schedule.RelativeDate{})
	coord.RegisterScheduler(schedule.DayTime{Zones: zones})
	coord.RegisterScheduler(schedule.TimeBased{})

	deps := variants.Deps{
		Coordinator: coord,
		Templates:   store,
		Entities:    entities,
		Zones:       zones,
		Log:         log,
	}
	coord.RegisterHandler(variants.NewAgendaItemDue(deps))
	coord.RegisterHandler(variants.NewHabitDue(deps))
	coord.RegisterHandler(variants.NewHabitTimedReminder(deps))
	coord.RegisterHandler(variants.NewClearInboxReminder(deps))

	manager := templates.NewManager(store, store, coord, log)

	runner := engine.NewRunner(store, coord, sender, engine.RunnerConfig{
		PromoteEvery:  cfg.PromoteEvery,
		DispatchEvery: cfg.DispatchEvery,
		Lookahead:     cfg.Lookahead,
	}, log)
	runner.Start(ctx)
	defer runner.Stop()

	ops := handlers.NewOpsHandler(runner, manager)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: ops.Router(),
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("ops server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	server.Shutdown(ctx)
}

func buildPusher(cfg *config.Config, log zerolog.Logger) (push.Pusher, error) {
	switch cfg.Pusher {
	case "amqp":
		return push.NewAMQPPusher(cfg.AMQPURL, cfg.ChunkSize, log)
	case "http":
		p := push.NewHTTPPusher(cfg.PushURL)
		p.ChunkSize = cfg.ChunkSize
		return p, nil
	default:
		return nil, fmt.Errorf("unknown pusher %q", cfg.Pusher)
	}
}
