package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/mcwatch/internal/api"
	"github.com/energizer-project/mcwatch/internal/cli"
	"github.com/energizer-project/mcwatch/internal/config"
	"github.com/energizer-project/mcwatch/internal/connector"
	"github.com/energizer-project/mcwatch/internal/db"
	"github.com/energizer-project/mcwatch/internal/events"
	"github.com/energizer-project/mcwatch/internal/network"
	"github.com/energizer-project/mcwatch/internal/scheduler"
	"github.com/energizer-project/mcwatch/internal/server"
	"github.com/energizer-project/mcwatch/internal/status"
	"github.com/energizer-project/mcwatch/internal/telemetry"
	"github.com/energizer-project/mcwatch/internal/util"
)

const (
	shutdownTimeout    = 30 * time.Second
	apiStartMaxRetries = 5
)

type serveOptions struct {
	configPath string
	noCLI      bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c",
		filepath.Join(config.DefaultConfigDir, config.DefaultConfigFile), "Path to the JSON or YAML config file")
	cmd.Flags().BoolVar(&opts.noCLI, "no-cli", false, "Disable the interactive console")

	return cmd
}

func runServe(opts serveOptions) error {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Defaults until the config is loaded
	closer, err := util.InitLogger(util.DefaultLogConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting mcwatch")

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		closer.Close()
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	closer.Close()
	closer, err = util.InitLogger(util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    cfg.Logging.Console,
	})
	if err != nil {
		return fmt.Errorf("failed to reconfigure logger: %w", err)
	}
	defer closer.Close()

	interactive := !opts.noCLI && isatty.IsTerminal(os.Stdin.Fd())

	if cfg.IsFirstRun() && interactive {
		log.Info().Msg("first run detected, launching setup wizard")
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("setup wizard failed: %w", err)
		}
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	manager, err := newManager(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every batch is logged, so auto update always has a subscriber.
	messages := cfg.Messages
	manager.Subscribe("log", func(ctx context.Context, batch events.Batch) error {
		log.Info().
			Str("label", batch.Label).
			Str("endpoint", batch.Endpoint.String()).
			Int("events", len(batch.Events)).
			Msg(messages.RenderBatch(batch))
		return nil
	})

	var journal *db.Journal
	if cfg.Journal.Enabled {
		journal, err = db.NewJournal(cfg.Journal.Path, cfg.Messages)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open event journal, journaling disabled")
		} else {
			manager.Subscribe("journal", journal.Handler())
		}
	}

	if cfg.Discord.Enabled {
		notifier := connector.NewDiscordNotifier(cfg.Discord, cfg.Messages)
		manager.Subscribe("discord", notifier.OnBatch)
	}

	var mqttHandler *telemetry.MQTTHandler
	if cfg.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg.MQTT, manager.Bus())
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	if err := makeObservers(manager, cfg.GetServers()); err != nil {
		manager.Dispose()
		return err
	}

	var wg sync.WaitGroup
	quitCh := make(chan struct{})

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg, manager, journal)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, apiStartMaxRetries); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	var pruner scheduler.Pruner
	if journal != nil {
		pruner = journal
	}
	sched := scheduler.NewScheduler(cfg.Journal, pruner, manager)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	if interactive {
		cliHandler := cli.NewCLI(cfg, manager, os.Stdin, os.Stdout)
		go func() {
			cliHandler.Start(ctx)
			close(quitCh)
		}()
	}

	interval := cfg.GetMonitor().Interval()
	if err := manager.StartAutoUpdate(interval); err != nil {
		cancel()
		manager.Dispose()
		return fmt.Errorf("failed to start auto update: %w", err)
	}
	log.Info().
		Dur("interval", interval).
		Int("servers", len(manager.Observers())).
		Msg("monitoring started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-quitCh:
		log.Info().Msg("quit requested from CLI")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Let the current round finish before the outputs go away
	manager.StopAutoUpdate()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	manager.Dispose()
	if journal != nil {
		if err := journal.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event journal")
		}
	}

	log.Info().Msg("mcwatch stopped")
	return nil
}

// newManager builds the orchestrator from the monitor settings.
func newManager(cfg *config.Config) (*server.Manager, error) {
	m := cfg.GetMonitor()

	variant, err := network.ParseVariant(m.Protocol)
	if err != nil {
		return nil, err
	}

	return server.NewManager(server.Config{
		Parallelism:  m.Parallelism,
		ProbeTimeout: m.Timeout(),
		Tracker: server.TrackerConfig{
			Retries:    m.Retries,
			RetryDelay: m.RetryDelay(),
			Retention:  m.Retention(),
		},
		Session: network.SessionConfig{
			Variant:         variant,
			ProtocolVersion: int32(m.ProtocolVersion),
			TimedPing:       m.TimedPing,
		},
		QueueSize: m.QueueSize,
	}), nil
}

// makeObservers registers one observer per configured server.
func makeObservers(manager *server.Manager, servers []config.ServerConfig) error {
	for _, s := range servers {
		ep, err := status.ParseEndpoint(s.Address)
		if err != nil {
			return fmt.Errorf("invalid address for server %q: %w", s.Label, err)
		}
		label := s.Label
		if label == "" {
			label = s.Address
		}
		o := manager.Make(ep, s.ForceNew, label)
		o.SetNotify(s.Notify())
		log.Info().Str("label", label).Str("endpoint", ep.String()).Msg("watching server")
	}
	return nil
}

// startWithRetry attempts to start a listener with a fixed 3-second wait
// between bind failures. Returns the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}

		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
