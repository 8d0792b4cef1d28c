package command

import (
	"fmt"
	"os"

	service "github.com/pixil98/go-service"

	"aiquest/internal/admin"
	"aiquest/internal/game"
	"aiquest/internal/listener"
	"aiquest/internal/messaging"
	"aiquest/internal/narrator"
	"aiquest/internal/session"
	"aiquest/internal/turn"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	seeds, err := cfg.Storage.BuildSeedStore()
	if err != nil {
		return nil, fmt.Errorf("creating story seed store: %w", err)
	}

	world := game.NewWorld(cfg.Game.maxPlayers(), cfg.Game.startLocation(), seeds)
	if err := cfg.Game.apply(world); err != nil {
		return nil, fmt.Errorf("applying game config: %w", err)
	}

	nats, err := cfg.Nats.BuildNatsServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	bcast := messaging.NewBroadcaster(world, nats)

	client, err := cfg.Narrator.BuildClient()
	if err != nil {
		return nil, fmt.Errorf("creating narrator client: %w", err)
	}
	prompts := narrator.NewBuilder(seeds)

	var schedOpts []turn.SchedulerOpt
	if cfg.Narrator.DebugDir != "" {
		schedOpts = append(schedOpts, turn.WithDebugSink(narrator.NewDebugWriter(cfg.Narrator.DebugDir)))
	}
	scheduler := turn.NewScheduler(world, client, prompts, bcast, schedOpts...)

	sessions := session.NewManager(world, scheduler, bcast, nats)
	connections := listener.NewConnectionManager(sessions)

	listeners := make(service.WorkerList, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		w, err := l.BuildListener(connections)
		if err != nil {
			return nil, fmt.Errorf("creating listener %d: %w", i, err)
		}
		listeners[fmt.Sprintf("listener-%d", i)] = w
	}

	console := admin.NewConsole(world, scheduler, sessions, bcast, os.Stdin, os.Stdout)

	return service.WorkerList{
		"nats":      nats,
		"turns":     scheduler,
		"sessions":  sessions,
		"admin":     console,
		"listeners": &listeners,
	}, nil
}
