package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstehr/vimy/vimy-colony/adaptive"
	"github.com/nstehr/vimy/vimy-colony/agent"
	"github.com/nstehr/vimy/vimy-colony/colony"
	"github.com/nstehr/vimy/vimy-colony/config"
	"github.com/nstehr/vimy/vimy-colony/counter"
	"github.com/nstehr/vimy/vimy-colony/events"
	"github.com/nstehr/vimy/vimy-colony/explore"
	"github.com/nstehr/vimy/vimy-colony/ipc"
	"github.com/nstehr/vimy/vimy-colony/monitor"
	"github.com/nstehr/vimy/vimy-colony/store"
	"github.com/nstehr/vimy/vimy-colony/trigger"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for game hosts on the domain socket",
	RunE:  runServe,
}

// buildDeps constructs the process-wide engines every colony shares.
func buildDeps(cfg *config.Config, seed int64, bus colony.Publisher, logger *slog.Logger) (colony.Deps, error) {
	mon, err := monitor.New(cfg.Monitor, logger)
	if err != nil {
		return colony.Deps{}, err
	}
	ad, err := adaptive.New(cfg.Adaptive, seed, logger)
	if err != nil {
		return colony.Deps{}, err
	}
	trg, err := trigger.New(cfg.Trigger, logger)
	if err != nil {
		return colony.Deps{}, err
	}
	ctr, err := counter.New(cfg.Counter, seed, trg, logger)
	if err != nil {
		return colony.Deps{}, err
	}
	exp, err := explore.New(cfg.Explore, logger)
	if err != nil {
		return colony.Deps{}, err
	}
	return colony.Deps{
		Monitor:  mon,
		Adaptive: ad,
		Counter:  ctr,
		Trigger:  trg,
		Explore:  exp,
		Events:   bus,
		Memory:   cfg.Memory,
		Seed:     seed,
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("starting vimy-colony", "seed", seed, "store", cfg.Store.Path)

	bus, err := events.New(cfg.Events, events.WithLogger(logger))
	if err != nil {
		return err
	}
	bus.Subscribe(func(e events.Event) error {
		logger.Debug("colony event", "type", e.Type, "colony", e.ColonyID, "level", e.Level)
		return nil
	}, events.Types...)
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		bus.Run(ctx)
	}()

	repo, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	deps, err := buildDeps(cfg, seed, bus, logger)
	if err != nil {
		return err
	}
	host, err := agent.NewHost(cfg.Colony, deps, repo, logger)
	if err != nil {
		return err
	}
	runner, err := agent.NewRunner(cfg.Runner, host, logger)
	if err != nil {
		return err
	}

	socketPath := cfg.Server.Socket
	// Unix sockets leave behind a file on unclean shutdown; remove it so we can rebind.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("clean up socket %s: %w", socketPath, err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)
	logger.Info("listening on domain socket", "path", socketPath)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
					return
				}
				logger.Error("failed to accept connection", "error", err)
				continue
			}
			logger.Info("new connection accepted")
			go handleConn(ctx, conn, host, runner)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "colonies", len(host.IDs()))
	listener.Close()
	<-busDone

	saveCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := host.SaveAll(saveCtx); err != nil {
		logger.Error("failed to persist colonies", "error", err)
	}
	bus.Close()
	if n := bus.Drain(saveCtx); n > 0 {
		logger.Info("drained events", "count", n)
	}
	return nil
}

func handleConn(ctx context.Context, conn net.Conn, host *agent.Host, runner *agent.Runner) {
	c := ipc.NewConnection(conn, nil, logger)
	a := agent.New(ctx, c, host, runner, cfg.Server.ReplyTimeout, logger)
	a.Register()
	c.ReadLoop()
	if a.ColonyID != "" {
		logger.Info("connection closed", "colony", a.ColonyID)
	}
}
